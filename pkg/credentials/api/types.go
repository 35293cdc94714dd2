package api

import "time"

// StatusResponse summarizes the caller's 2FA configuration
type StatusResponse struct {
	TotpEnabled          bool       `json:"totp_enabled"`
	SmsEnabled           bool       `json:"sms_enabled"`
	PreferredMethod      string     `json:"preferred_method,omitempty"`
	MaskedPhone          string     `json:"masked_phone,omitempty"`
	PendingTotpSetup     bool       `json:"pending_totp_setup,omitempty"`
	PendingSmsSetup      bool       `json:"pending_sms_setup,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
	TwoFactorVerifiedAt  *time.Time `json:"two_factor_verified_at,omitempty"`
}

// TotpSetupResponse carries the provisioning material for an authenticator app
type TotpSetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// ConfirmRequest submits the code proving the pending method works
type ConfirmRequest struct {
	Code string `json:"code"`
}

// SetupResultResponse reports a confirmed method. BackupCodes is present only
// when this confirmation enabled the user's first method.
type SetupResultResponse struct {
	Method      string   `json:"method"`
	BackupCodes []string `json:"backup_codes,omitempty"`
}

// SmsSetupRequest starts SMS enrollment for the given phone number
type SmsSetupRequest struct {
	Phone string `json:"phone"`
}

// SmsSetupResponse reports where the verification code was sent
type SmsSetupResponse struct {
	MaskedPhone string `json:"masked_phone"`
	Message     string `json:"message"`
}

// PreferredMethodRequest selects which enabled method challenges default to
type PreferredMethodRequest struct {
	Method string `json:"method"`
}

// RegenerateResponse carries a fresh backup-code batch
type RegenerateResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the error body shared by all routes in this API
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}
