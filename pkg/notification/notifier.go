package notification

type NotificationData struct {
	To      string            // Recipient identifier (e.g., email address, phone number, Slack channel)
	Subject string            // Optional: Subject for notifications like email
	Body    string            // The content or message to send; templates render into this when empty
	Data    map[string]string // Template data (e.g., passcode, masked destination, event details)
}

type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
