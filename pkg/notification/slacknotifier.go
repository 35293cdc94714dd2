package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"text/template"
	"time"
)

// SlackNotifier posts notices to a Slack incoming webhook.
// Used for operator-facing alerts such as lockout spikes.
type SlackNotifier struct {
	WebhookURL string
	httpClient *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackNotifier) Send(noticeType NoticeType, notification NotificationData, noticeTemplate NoticeTemplate) error {
	// Prefer an explicit body; otherwise render the registered text template
	body := notification.Body
	if body == "" && noticeTemplate.Text != "" {
		tmpl, err := template.New("slack").Parse(noticeTemplate.Text)
		if err != nil {
			slog.Error("Failed to parse Slack template", "err", err)
			return err
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, notification.Data); err != nil {
			slog.Error("Failed to execute Slack template", "err", err)
			return err
		}
		body = buf.String()
	}
	if body == "" {
		return fmt.Errorf("slack notification requires 'Body' or a text template")
	}

	payload, err := json.Marshal(map[string]string{"text": body})
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Post(s.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		slog.Error("Failed to post Slack message", "err", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	slog.Info("Sent Slack message", "noticeType", noticeType)
	return nil
}
