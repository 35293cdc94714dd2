package api

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/licensemart/stepup-auth/pkg/audit"
	"github.com/licensemart/stepup-auth/pkg/client"
	"github.com/licensemart/stepup-auth/pkg/errors"
	"github.com/licensemart/stepup-auth/pkg/override"
)

// Handle serves the admin override routes: resetting a user's 2FA and
// issuing emergency codes. Routes are mounted behind the admin role
// middleware; the handlers check again so a wiring mistake fails closed.
type Handle struct {
	overrideService *override.OverrideService
}

// NewHandle creates a new override API handle
func NewHandle(overrideService *override.OverrideService) *Handle {
	return &Handle{overrideService: overrideService}
}

// Handler returns a http.Handler for the override API
func Handler(h *Handle) http.Handler {
	r := chi.NewRouter()

	// Admin actions are audited with the caller's transport metadata
	r.Use(audit.CaptureRequestInfo)

	r.Post("/users/{user_id}/reset", h.ResetUser2FA)
	r.Post("/users/{user_id}/emergency-codes", h.GenerateEmergencyCodes)

	return r
}

// ResetUser2FA handles POST /users/{user_id}/reset
func (h *Handle) ResetUser2FA(w http.ResponseWriter, r *http.Request) {
	admin, targetID, ok := h.adminAndTarget(w, r)
	if !ok {
		return
	}

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, errors.Validation("body", "invalid request body"))
		return
	}

	if err := h.overrideService.ResetUser2FA(r.Context(), targetID, admin.UserUuid, req.Reason); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ResetResponse{Message: "Two-factor authentication reset"})
}

// GenerateEmergencyCodes handles POST /users/{user_id}/emergency-codes
func (h *Handle) GenerateEmergencyCodes(w http.ResponseWriter, r *http.Request) {
	admin, targetID, ok := h.adminAndTarget(w, r)
	if !ok {
		return
	}

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, errors.Validation("body", "invalid request body"))
		return
	}

	batch, err := h.overrideService.GenerateEmergencyCodes(r.Context(), targetID, admin.UserUuid, req.Reason)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, EmergencyCodesResponse{
		Codes:     batch.Codes,
		ExpiresAt: batch.ExpiresAt,
	})
}

// adminAndTarget resolves the calling admin and the {user_id} path parameter,
// writing the error response itself when either check fails.
func (h *Handle) adminAndTarget(w http.ResponseWriter, r *http.Request) (*client.AuthUser, uuid.UUID, bool) {
	authUser, ok := client.AuthUserFromRequest(r)
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return nil, uuid.Nil, false
	}
	if !client.IsAdmin(authUser) {
		slog.Warn("non-admin attempted an override action", "userId", authUser.UserId)
		renderError(w, r, errors.Forbidden("administrator role required"))
		return nil, uuid.Nil, false
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		renderError(w, r, errors.Validation("user_id", "must be a UUID"))
		return nil, uuid.Nil, false
	}

	return authUser, targetID, true
}

// renderError writes a service error as a JSON response. Internal failures
// collapse into a generic body.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *errors.Error
	if !stderrors.As(err, &svcErr) || svcErr.Code == errors.ErrCodeInternal {
		slog.Error("internal error in override API", "error", err)
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
