// Package notification provides a pluggable notice delivery system for stepup-auth.
//
// A NotificationManager routes notices to one or more delivery systems (email,
// SMS, Slack). Each notice type registers a template per system, and Send fans
// the notice out to every system that has a template for it.
//
// # Architecture
//
//	NoticeType ──> NotificationManager ──> Notifier (email | sms | slack)
//	                     │
//	                     └── registry: NoticeType -> system -> NoticeTemplate
//
// Notifiers implement a single interface:
//
//	type Notifier interface {
//		Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
//	}
//
// # Quick Start
//
// Create a manager with functional options:
//
//	manager, err := notification.NewNotificationManagerWithOptions(
//		"https://licensemart.example",
//		notification.WithSMTP(smtpConfig),
//		notification.WithTwilio(twilioConfig),
//		notification.WithDefaultTemplates(),
//	)
//	if err != nil {
//		return err
//	}
//
// Send a notice:
//
//	err = manager.Send(notification.TwofaCodeSms, notification.NotificationData{
//		To: "+15551234567",
//		Data: map[string]string{
//			"TwofaPasscode": "123456",
//		},
//	})
//
// # Notice Types
//
// The package ships templates for the two-factor lifecycle:
//
//   - TwofaCodeSms: one-time verification code during a challenge
//   - PhoneVerificationSms: possession-proof code during SMS enrollment
//   - SecurityAlertEmail: security-relevant account changes (method disabled, admin reset)
//   - BackupCodesRegeneratedEmail: backup codes replaced
//   - LockoutNoticeEmail: verification locked after repeated failures
//   - EmergencyCodesIssuedEmail: admin issued temporary emergency codes
//   - LockoutOpsAlert: operator channel alert, registered by WithSlack
//
// # Templates
//
// Email templates are HTML files embedded from templates/email and rendered
// with NotificationData.Data as the template context. SMS and Slack templates
// are inline text strings. The manager injects its base URL into template data
// under "BaseUrl" so templates can link back to the account security page.
//
// Registering a custom template:
//
//	err := manager.RegisterNotification(notification.SecurityAlertEmail, notification.EmailSystem,
//		notification.NoticeTemplate{
//			Subject: "Security Alert",
//			Html:    customHtml,
//		})
//
// Templates must have a non-empty subject and at least one of Text or Html.
//
// # Testing
//
// MockNotifier records sent notifications without touching the network:
//
//	mock := &notification.MockNotifier{}
//	manager := notification.NewNotificationManager("")
//	manager.RegisterNotifier(notification.SMSSystem, mock)
//
// # Security Considerations
//
// - One-time codes are placed in message bodies, never in logs
// - Delivery destinations should be masked before they appear in API responses
// - Notification failures during security flows are logged and surfaced, not silently dropped
package notification
