package notifier

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/stormguard/stormguard/internal/types"
)

const maxDescription = 500

// AlertMessage renders the full detail of an alert for admins
func AlertMessage(alert types.Alert, confirmHint string) types.Message {
	description := truncate(alert.Description, maxDescription)

	expires := "Unknown"
	if alert.Expiry != nil {
		expires = alert.Expiry.Format(time.RFC1123)
	}

	return types.Message{
		Title: "⚠️ Severe Weather Alert Detected",
		Body: fmt.Sprintf("Type: %s\nArea: %s\nIssued By: %s\n\n%s",
			alert.EventType, alert.AreaDescription, alert.Issuer, description),
		Fields:   []types.Field{{Name: "Expires", Value: expires}},
		Footer:   confirmHint,
		Severity: "critical",
	}
}

// ReminderMessage is an escalation round: the alert detail plus the minutes left
func ReminderMessage(alert types.Alert, to types.Recipient, remaining int, confirmHint, cancelHint string) types.Message {
	msg := AlertMessage(alert, confirmHint)
	msg.Title = fmt.Sprintf("⏳ Server shutdown pending: %d minute(s) remaining", remaining)
	msg.Body = fmt.Sprintf("%s, please respond with %s. Server will shut down in %d minute(s). Send %s to cancel.\n\n%s",
		to.DisplayName, confirmHint, remaining, cancelHint, msg.Body)
	msg.Severity = "warning"
	return msg
}

// AnnouncementMessage is the community-wide shutdown notice
func AnnouncementMessage(alert types.Alert, cooldown time.Duration) types.Message {
	return types.Message{
		Title: "🌩️ SERVER SHUTDOWN NOTICE",
		Body: fmt.Sprintf("Due to active severe weather in the area, the servers will be shut down shortly for safety reasons.\n\n"+
			"Type: %s\nStay safe and follow local safety instructions.", alert.EventType),
		Footer:   fmt.Sprintf("Shutdown in %s.", humanDuration(cooldown)),
		Severity: "warning",
	}
}

// truncate keeps the first limit characters, never splitting a rune
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + "..."
		}
		n++
	}
	return s
}

func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
