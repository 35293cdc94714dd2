package api

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"

	"github.com/licensemart/stepup-auth/pkg/client"
	"github.com/licensemart/stepup-auth/pkg/credentials"
	"github.com/licensemart/stepup-auth/pkg/errors"
	"github.com/licensemart/stepup-auth/pkg/sessiongrant"
)

// Handle serves the self-service 2FA configuration routes. Every route acts
// on the authenticated user; administrative resets live in the override API.
type Handle struct {
	credentialService *credentials.CredentialService
	grantService      *sessiongrant.GrantService
}

// NewHandle creates a new configuration API handle
func NewHandle(credentialService *credentials.CredentialService, grantService *sessiongrant.GrantService) *Handle {
	return &Handle{
		credentialService: credentialService,
		grantService:      grantService,
	}
}

// Handler returns a http.Handler for the 2FA configuration API
func Handler(h *Handle) http.Handler {
	r := chi.NewRouter()

	r.Get("/status", h.GetStatus)
	r.Post("/totp/setup", h.SetupTotp)
	r.Post("/totp/confirm", h.ConfirmTotp)
	r.Post("/sms/setup", h.SetupSms)
	r.Post("/sms/confirm", h.ConfirmSms)
	r.Post("/disable", h.Disable)
	r.Put("/preferred-method", h.SetPreferredMethod)
	r.Post("/backup-codes/regenerate", h.RegenerateBackupCodes)

	return r
}

// GetStatus handles GET /status
func (h *Handle) GetStatus(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.AuthUserFromRequest(r)
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return
	}

	status, err := h.credentialService.GetStatus(r.Context(), authUser.UserUuid)
	if err != nil {
		renderError(w, r, err)
		return
	}

	response := StatusResponse{}
	copier.Copy(&response, status)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// SetupTotp handles POST /totp/setup
func (h *Handle) SetupTotp(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.AuthUserFromRequest(r)
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return
	}

	setup, err := h.credentialService.EnableTotp(r.Context(), authUser.UserUuid)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, TotpSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
	})
}

// ConfirmTotp handles POST /totp/confirm
func (h *Handle) ConfirmTotp(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.AuthUserFromRequest(r)
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, errors.Validation("body", "invalid request body"))
		return
	}
	if req.Code == "" {
		renderError(w, r, errors.Validation("code", "code is required"))
		return
	}

	result, err := h.credentialService.ConfirmTotpSetup(r.Context(), authUser.UserUuid, req.Code)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SetupResultResponse{
		Method:      result.Method,
		BackupCodes: result.BackupCodes,
	})
}

// SetupSms handles POST /sms/setup
func (h *Handle) SetupSms(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.AuthUserFromRequest(r)
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return
	}

	var req SmsSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, errors.Validation("body", "invalid request body"))
		return
	}

	maskedPhone, err := h.credentialService.EnableSms(r.Context(), authUser.UserUuid, req.Phone)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SmsSetupResponse{
		MaskedPhone: maskedPhone,
		Message:     "A verification code was sent to your phone",
	})
}

// ConfirmSms handles POST /sms/confirm
func (h *Handle) ConfirmSms(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.AuthUserFromRequest(r)
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, errors.Validation("body", "invalid request body"))
		return
	}
	if req.Code == "" {
		renderError(w, r, errors.Validation("code", "code is required"))
		return
	}

	result, err := h.credentialService.ConfirmSmsSetup(r.Context(), authUser.UserUuid, req.Code)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SetupResultResponse{
		Method:      result.Method,
		BackupCodes: result.BackupCodes,
	})
}

// Disable handles POST /disable. A fresh session grant is required so a
// hijacked browser session cannot strip the account's second factor.
func (h *Handle) Disable(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.AuthUserFromRequest(r)
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return
	}
	if !h.holdsFreshGrant(r, authUser) {
		renderError(w, r, errors.Unauthorized("a recent two-factor verification is required"))
		return
	}

	if err := h.credentialService.Disable2FA(r.Context(), authUser.UserUuid); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Two-factor authentication disabled"})
}

// SetPreferredMethod handles PUT /preferred-method. Requires a fresh grant.
func (h *Handle) SetPreferredMethod(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.AuthUserFromRequest(r)
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return
	}
	if !h.holdsFreshGrant(r, authUser) {
		renderError(w, r, errors.Unauthorized("a recent two-factor verification is required"))
		return
	}

	var req PreferredMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, errors.Validation("body", "invalid request body"))
		return
	}

	if err := h.credentialService.SetPreferredMethod(r.Context(), authUser.UserUuid, req.Method); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Preferred method updated"})
}

// RegenerateBackupCodes handles POST /backup-codes/regenerate. Requires a
// fresh grant.
func (h *Handle) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.AuthUserFromRequest(r)
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return
	}
	if !h.holdsFreshGrant(r, authUser) {
		renderError(w, r, errors.Unauthorized("a recent two-factor verification is required"))
		return
	}

	codes, err := h.credentialService.RegenerateBackupCodes(r.Context(), authUser.UserUuid)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RegenerateResponse{BackupCodes: codes})
}

// holdsFreshGrant reports whether the request carries a valid session grant
// issued to this user. The grant's own expiry bounds freshness.
func (h *Handle) holdsFreshGrant(r *http.Request, authUser *client.AuthUser) bool {
	if h.grantService == nil {
		return false
	}

	token := sessiongrant.GrantFromCookie(r)
	if token == "" {
		token = sessiongrant.GrantFromHeader(r)
	}
	if token == "" {
		return false
	}

	claims, err := h.grantService.ValidateGrant(r.Context(), token)
	if err != nil {
		slog.Debug("rejecting stale or invalid grant", "userId", authUser.UserId, "error", err)
		return false
	}
	return claims.Subject == authUser.UserId
}

// renderError writes a service error as a JSON response. Internal failures
// collapse into a generic body so callers never see storage details.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *errors.Error
	if !stderrors.As(err, &svcErr) {
		slog.Error("unclassified error in configuration API", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "an internal error occurred", Code: string(errors.ErrCodeInternal)})
		return
	}

	if svcErr.Code == errors.ErrCodeInternal {
		slog.Error("internal error in configuration API", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "an internal error occurred", Code: string(errors.ErrCodeInternal)})
		return
	}

	render.Status(r, svcErr.HTTPStatusCode())
	render.JSON(w, r, ErrorResponse{
		Error:   svcErr.Message,
		Code:    string(svcErr.Code),
		Details: svcErr.Details,
	})
}
