package api

import "time"

// AdoptionMetricsResponse reports enrollment spread across the user base
type AdoptionMetricsResponse struct {
	TotalRecords  int     `json:"total_records"`
	TotpEnabled   int     `json:"totp_enabled"`
	SmsEnabled    int     `json:"sms_enabled"`
	AnyEnabled    int     `json:"any_enabled"`
	BothEnabled   int     `json:"both_enabled"`
	PreferredTotp int     `json:"preferred_totp"`
	PreferredSms  int     `json:"preferred_sms"`
	AdoptionRate  float64 `json:"adoption_rate"`
}

// TrendBucketResponse is one fixed window of verification activity
type TrendBucketResponse struct {
	WindowStart time.Time `json:"window_start"`
	Failures    int       `json:"failures"`
	Successes   int       `json:"successes"`
	Lockouts    int       `json:"lockouts"`
	FailureRate float64   `json:"failure_rate"`
}

// FailureTrendResponse wraps the trend windows with the query bounds
type FailureTrendResponse struct {
	Since   time.Time             `json:"since"`
	Bucket  string                `json:"bucket"`
	Windows []TrendBucketResponse `json:"windows"`
}

// ErrorResponse is the error body shared by all routes in this API
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}
