package api

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/licensemart/stepup-auth/pkg/audit"
	"github.com/licensemart/stepup-auth/pkg/challenge"
	"github.com/licensemart/stepup-auth/pkg/client"
	"github.com/licensemart/stepup-auth/pkg/errors"
	"github.com/licensemart/stepup-auth/pkg/sessiongrant"
)

// unavailableMessage is the single response body initiate returns for unknown
// users, un-enrolled users and backend faults alike, so callers cannot probe
// which accounts exist.
const unavailableMessage = "two-factor authentication is not available for this account"

// Handle serves the challenge issue/verify routes used during step-up
// authentication.
type Handle struct {
	challengeService challenge.ChallengeService
	grantCookies     *sessiongrant.GrantCookieService
}

// NewHandle creates a new challenge API handle. grantCookies may be nil when
// grants should travel only in the response body.
func NewHandle(challengeService challenge.ChallengeService, grantCookies *sessiongrant.GrantCookieService) *Handle {
	return &Handle{
		challengeService: challengeService,
		grantCookies:     grantCookies,
	}
}

// Handler returns a http.Handler for the challenge API
func Handler(h *Handle) http.Handler {
	r := chi.NewRouter()

	r.Post("/initiate", h.Initiate)
	r.Post("/verify", h.Verify)

	return r
}

// Initiate handles POST /initiate
func (h *Handle) Initiate(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.AuthUserFromRequest(r)
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return
	}

	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		renderError(w, r, errors.Validation("body", "invalid request body"))
		return
	}

	targetID := authUser.UserUuid
	if req.UserID != "" {
		parsed, err := uuid.Parse(req.UserID)
		if err != nil {
			renderError(w, r, errors.Validation("user_id", "must be a UUID"))
			return
		}
		if parsed != authUser.UserUuid && !client.IsAdmin(authUser) {
			slog.Warn("rejected challenge initiation for another user",
				"callerId", authUser.UserId, "targetId", parsed)
			renderError(w, r, errors.Forbidden("you can only initiate challenges for your own account"))
			return
		}
		targetID = parsed
	}

	info := audit.RequestInfoFromHTTP(r)
	challengeInfo, err := h.challengeService.InitiateChallenge(r.Context(), targetID, info)
	if err != nil {
		switch errors.GetCode(err) {
		case errors.ErrCodeRateLimited, errors.ErrCodeAccountLocked:
			renderError(w, r, err)
		default:
			// Unknown user, no enrollment and backend fault all look the same
			if errors.GetCode(err) == errors.ErrCodeInternal {
				slog.Error("challenge initiation failed", "error", err)
			}
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{
				Error: unavailableMessage,
				Code:  string(errors.ErrCodeNotEnabled),
			})
		}
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ChallengeResponse{
		ChallengeToken:    challengeInfo.Token,
		Method:            challengeInfo.Method,
		ExpiresAt:         challengeInfo.ExpiresAt,
		MaskedDestination: challengeInfo.MaskedDestination,
	})
}

// Verify handles POST /verify
func (h *Handle) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, errors.Validation("body", "invalid request body"))
		return
	}
	if req.ChallengeToken == "" {
		renderError(w, r, errors.Validation("challenge_token", "challenge_token is required"))
		return
	}
	if req.Code == "" {
		renderError(w, r, errors.Validation("code", "code is required"))
		return
	}

	info := audit.RequestInfoFromHTTP(r)
	result, err := h.challengeService.VerifyChallenge(r.Context(), req.ChallengeToken, req.Code, info)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if !result.Success {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, VerifyResponse{
			Success:           false,
			AttemptsRemaining: result.AttemptsRemaining,
		})
		return
	}

	response := VerifyResponse{Success: true}
	if result.Grant != nil {
		response.Grant = &GrantResponse{
			Token:     result.Grant.Token,
			ExpiresAt: result.Grant.ExpiresAt,
			Method:    result.Grant.Method,
		}
		if h.grantCookies != nil {
			if err := h.grantCookies.SetGrantCookie(w, result.Grant); err != nil {
				slog.Error("failed to set grant cookie", "error", err)
			}
		}
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// renderError writes a service error as a JSON response. Internal failures
// collapse into a generic body.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *errors.Error
	if !stderrors.As(err, &svcErr) {
		slog.Error("unclassified error in challenge API", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "an internal error occurred", Code: string(errors.ErrCodeInternal)})
		return
	}

	if svcErr.Code == errors.ErrCodeInternal {
		slog.Error("internal error in challenge API", "error", err)
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
