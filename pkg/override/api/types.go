package api

import "time"

// OverrideRequest carries the justification every admin intervention needs
type OverrideRequest struct {
	Reason string `json:"reason"`
}

// ResetResponse acknowledges a completed reset
type ResetResponse struct {
	Message string `json:"message"`
}

// EmergencyCodesResponse carries a short-lived emergency code batch
type EmergencyCodesResponse struct {
	Codes     []string  `json:"codes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse is the error body shared by all routes in this API
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}
