package api

import "time"

// InitiateRequest starts a challenge. UserID is optional: the authenticated
// caller's own ID is used when it is absent. Naming another user requires an
// admin or service role.
type InitiateRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// ChallengeResponse hands back the issued challenge
type ChallengeResponse struct {
	ChallengeToken    string    `json:"challenge_token"`
	Method            string    `json:"method"`
	ExpiresAt         time.Time `json:"expires_at"`
	MaskedDestination string    `json:"masked_destination,omitempty"`
}

// VerifyRequest submits a code against an open challenge
type VerifyRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}

// GrantResponse is the session grant returned on a successful verification
type GrantResponse struct {
	Token     string    `json:"grant_token"`
	ExpiresAt time.Time `json:"expires_at"`
	Method    string    `json:"method"`
}

// VerifyResponse reports a verification outcome. A wrong code returns
// Success false with the remaining attempt budget; Grant is present only on
// success.
type VerifyResponse struct {
	Success           bool           `json:"success"`
	AttemptsRemaining int            `json:"attempts_remaining,omitempty"`
	Grant             *GrantResponse `json:"grant,omitempty"`
}

// ErrorResponse is the error body shared by all routes in this API
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}
