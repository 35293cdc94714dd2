// Package main sends a test notice through the notification manager so SMTP
// and Twilio settings can be checked before pointing the real service at them.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/licensemart/stepup-auth/pkg/config"
	"github.com/licensemart/stepup-auth/pkg/notification"
)

func main() {
	// Parse command line flags
	channel := flag.String("channel", "email", "Delivery channel to test: email or sms")
	to := flag.String("to", "", "Recipient (email address or E.164 phone number)")
	baseURL := flag.String("base-url", "http://localhost:4000", "Base URL rendered into account links")
	flag.Parse()

	if *to == "" {
		fmt.Println("Error: -to recipient is required")
		os.Exit(1)
	}

	// Provider settings come from the usual EMAIL_* and TWILIO_* environment
	emailConfig := config.NewEmailConfigFromEnv()
	twilioConfig := config.NewTwilioConfigFromEnv()

	manager, err := notification.NewNotificationManagerWithConfigs(
		*baseURL,
		emailConfig.ToSMTPConfig(),
		twilioConfig.ToNotificationTwilioConfig(),
	)
	if err != nil {
		log.Fatalf("Failed to build notification manager: %v", err)
	}

	switch *channel {
	case "email":
		err = manager.Send(notification.SecurityAlertEmail, notification.NotificationData{
			To: *to,
			Data: map[string]string{
				"Event": "Notification delivery test",
				"Time":  time.Now().UTC().Format(time.RFC3339),
			},
		})
	case "sms":
		err = manager.Send(notification.TwofaCodeSms, notification.NotificationData{
			To:   *to,
			Data: map[string]string{"TwofaPasscode": "000000"},
		})
	default:
		log.Fatalf("Unknown channel %q (want email or sms)", *channel)
	}

	if err != nil {
		log.Fatalf("Failed to send test notice: %v", err)
	}

	fmt.Println("Test notice sent successfully!")
}
