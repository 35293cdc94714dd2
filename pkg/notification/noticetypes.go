package notification

// NoticeType identifies a kind of notice sent to users or operators.
type NoticeType string

const (
	// TwofaCodeSms delivers a one-time verification code during a challenge
	TwofaCodeSms NoticeType = "twofa_code_sms"

	// PhoneVerificationSms delivers a possession-proof code during SMS enrollment
	PhoneVerificationSms NoticeType = "phone_verification_sms"

	// SecurityAlertEmail notifies a user of a security-relevant account change
	SecurityAlertEmail NoticeType = "security_alert_email"

	// BackupCodesRegeneratedEmail notifies a user that their backup codes were replaced
	BackupCodesRegeneratedEmail NoticeType = "backup_codes_regenerated_email"

	// LockoutNoticeEmail notifies a user that verification is temporarily locked
	LockoutNoticeEmail NoticeType = "lockout_notice_email"

	// EmergencyCodesIssuedEmail notifies a user that an admin issued emergency codes
	EmergencyCodesIssuedEmail NoticeType = "emergency_codes_issued_email"

	// LockoutOpsAlert notifies the operations channel about a lockout event
	LockoutOpsAlert NoticeType = "lockout_ops_alert"

	// ExampleNotice is used in tests and documentation
	ExampleNotice NoticeType = "example"
)

// NoticeTemplate holds the subject and bodies for a notice.
// At least one of Text or Html must be set.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}
