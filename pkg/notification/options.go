package notification

import (
	"embed"
	"log/slog"
)

//go:embed templates/*
var templateFiles embed.FS

func loadTemplate(filename string) string {
	content, err := templateFiles.ReadFile(filename)
	if err != nil {
		slog.Error("Error reading template file!", "err", err, "filename", filename)
		return ""
	}
	return string(content)
}

// NotificationManagerOption is a function that configures a NotificationManager
type NotificationManagerOption func(*NotificationManager) error

// WithSMTP adds an email notifier with the provided SMTP configuration
func WithSMTP(config SMTPConfig) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		emailNotifier, err := NewEmailNotifier(config)
		if err != nil {
			return err
		}
		nm.RegisterNotifier(EmailSystem, emailNotifier)
		return nil
	}
}

// WithTwilio adds an SMS notifier with the provided Twilio configuration
func WithTwilio(config TwilioConfig) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		smsNotifier := NewSMSNotifier(config)
		nm.RegisterNotifier(SMSSystem, smsNotifier)
		return nil
	}
}

// WithSlack adds a Slack notifier and enables the operator lockout alert
func WithSlack(webhookURL string) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		nm.RegisterNotifier(SlackSystem, NewSlackNotifier(webhookURL))
		return nm.RegisterNotification(LockoutOpsAlert, SlackSystem, NoticeTemplate{
			Subject: "2FA Lockout",
			Text:    "2FA verification locked for user {{.UserID}} until {{.LockedUntil}} after repeated failures.",
		})
	}
}

// WithTwofaCodeSmsTemplate registers the 2FA code SMS template
func WithTwofaCodeSmsTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(TwofaCodeSms, SMSSystem, NoticeTemplate{
			Subject: "2FA Code",
			Text:    "Your 2FA code is: {{.TwofaPasscode}}",
		})
	}
}

// WithPhoneVerificationTemplate registers the phone verification SMS template
func WithPhoneVerificationTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(PhoneVerificationSms, SMSSystem, NoticeTemplate{
			Subject: "Phone Verification",
			Text:    "Your phone verification code is: {{.Passcode}}",
		})
	}
}

// WithSecurityAlertTemplate registers the security alert email template
func WithSecurityAlertTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(SecurityAlertEmail, EmailSystem, NoticeTemplate{
			Subject: "Security Alert",
			Html:    loadTemplate("templates/email/security_alert.html"),
		})
	}
}

// WithBackupCodesRegeneratedTemplate registers the backup codes regenerated email template
func WithBackupCodesRegeneratedTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(BackupCodesRegeneratedEmail, EmailSystem, NoticeTemplate{
			Subject: "Backup Codes Regenerated",
			Html:    loadTemplate("templates/email/backup_codes_regenerated.html"),
		})
	}
}

// WithLockoutNoticeTemplate registers the lockout notice email template
func WithLockoutNoticeTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(LockoutNoticeEmail, EmailSystem, NoticeTemplate{
			Subject: "Account Verification Locked",
			Html:    loadTemplate("templates/email/lockout_notice.html"),
		})
	}
}

// WithEmergencyCodesIssuedTemplate registers the emergency codes issued email template
func WithEmergencyCodesIssuedTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(EmergencyCodesIssuedEmail, EmailSystem, NoticeTemplate{
			Subject: "Emergency Access Codes Issued",
			Html:    loadTemplate("templates/email/emergency_codes_issued.html"),
		})
	}
}

// WithDefaultTemplates registers all default notice templates
func WithDefaultTemplates() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		options := []NotificationManagerOption{
			WithTwofaCodeSmsTemplate(),
			WithPhoneVerificationTemplate(),
			WithSecurityAlertTemplate(),
			WithBackupCodesRegeneratedTemplate(),
			WithLockoutNoticeTemplate(),
			WithEmergencyCodesIssuedTemplate(),
		}

		for _, opt := range options {
			if err := opt(nm); err != nil {
				return err
			}
		}

		return nil
	}
}

// NewNotificationManagerWithOptions creates a new notification manager with the provided options
func NewNotificationManagerWithOptions(baseUrl string, opts ...NotificationManagerOption) (*NotificationManager, error) {
	notificationManager := NewNotificationManager(baseUrl)

	// Apply all options
	for _, opt := range opts {
		if err := opt(notificationManager); err != nil {
			return nil, err
		}
	}

	return notificationManager, nil
}

// NewNotificationManagerWithConfigs creates a notification manager with SMTP and Twilio configs
// For backward compatibility
func NewNotificationManagerWithConfigs(baseUrl string, smtpConfig SMTPConfig, twConfig TwilioConfig) (*NotificationManager, error) {
	return NewNotificationManagerWithOptions(
		baseUrl,
		WithSMTP(smtpConfig),
		WithTwilio(twConfig),
		WithDefaultTemplates(),
	)
}
