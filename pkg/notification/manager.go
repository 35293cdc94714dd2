package notification

import (
	"fmt"
)

// NotificationSystem represents a type of notification system (e.g., email, SMS, Slack).
type NotificationSystem string

const (
	EmailSystem NotificationSystem = "email"
	SMSSystem   NotificationSystem = "sms"
	SlackSystem NotificationSystem = "slack"
)

// NotificationManager manages notifiers and notice templates.
type NotificationManager struct {
	baseUrl              string                                                   // Base URL injected into template data for account links
	notifiers            map[NotificationSystem]Notifier                          // Map of notification systems to their Notifier implementations
	notificationRegistry map[NoticeType]map[NotificationSystem]NoticeTemplate // Registry of templates per notice type and system
}

// NewNotificationManager creates and returns a new NotificationManager.
func NewNotificationManager(baseUrl string) *NotificationManager {
	return &NotificationManager{
		baseUrl:              baseUrl,
		notifiers:            make(map[NotificationSystem]Notifier),
		notificationRegistry: make(map[NoticeType]map[NotificationSystem]NoticeTemplate),
	}
}

// RegisterNotifier registers a notifier for a specific system.
func (nm *NotificationManager) RegisterNotifier(system NotificationSystem, notifier Notifier) {
	nm.notifiers[system] = notifier
}

// RegisterNotification dynamically adds a notice template to the registry.
func (nm *NotificationManager) RegisterNotification(noticeType NoticeType, system NotificationSystem, template NoticeTemplate) error {
	// Validate input
	if noticeType == "" || system == "" {
		return fmt.Errorf("invalid input: notice type and system cannot be empty")
	}
	if template.Subject == "" {
		return fmt.Errorf("invalid template: subject cannot be empty")
	}
	if template.Text == "" && template.Html == "" {
		return fmt.Errorf("invalid template: text or HTML content is required")
	}

	// Check if the notice type exists in the registry
	if _, exists := nm.notificationRegistry[noticeType]; !exists {
		nm.notificationRegistry[noticeType] = make(map[NotificationSystem]NoticeTemplate)
	}

	// Add or update the template for the system under the given notice type
	nm.notificationRegistry[noticeType][system] = template
	return nil
}

// Send delivers a notice through every system that has a template registered
// for the notice type. Template data is passed through to the notifier, with
// the manager's base URL added under "BaseUrl" when not already present.
func (nm *NotificationManager) Send(noticeType NoticeType, notification NotificationData) error {
	systemTemplates, exists := nm.notificationRegistry[noticeType]
	if !exists {
		return fmt.Errorf("no templates registered for notice type: %s", noticeType)
	}

	if nm.baseUrl != "" {
		if notification.Data == nil {
			notification.Data = make(map[string]string)
		}
		if _, ok := notification.Data["BaseUrl"]; !ok {
			notification.Data["BaseUrl"] = nm.baseUrl
		}
	}

	for system, template := range systemTemplates {
		notifier, exists := nm.notifiers[system]
		if !exists {
			return fmt.Errorf("no notifier registered for system: %s", system)
		}
		if err := notifier.Send(noticeType, notification, template); err != nil {
			return err
		}
	}

	return nil
}
