package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/airsentry/airsentry/internal/forecast"
	"github.com/airsentry/airsentry/internal/subscription"
)

const smsMaxLen = 160

// EmailSink delivers a formatted alert email. Implementations may fail; the
// dispatcher logs failures and moves on.
type EmailSink interface {
	SendEmail(ctx context.Context, subscriberID, subject, body string) error
}

// SMSSink delivers a short alert text.
type SMSSink interface {
	SendSMS(ctx context.Context, subscriberID, body string) error
}

func formatLocation(loc subscription.Location) string {
	return fmt.Sprintf("%.2f, %.2f", loc.Lat, loc.Lng)
}

func emailSubject(alerts []forecast.Alert) string {
	worst := worstSeverity(alerts)
	return fmt.Sprintf("Air quality %s: %d alert(s) for your area", worst, len(alerts))
}

func emailBody(loc subscription.Location, alerts []forecast.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d air quality alert(s) near %s:\n\n", len(alerts), formatLocation(loc))
	for _, a := range alerts {
		fmt.Fprintf(&b, "- [%s] %s (in %dh)\n", strings.ToUpper(string(a.Severity)), a.Message, a.HoursUntil)
	}
	b.WriteString("\nStay informed and limit outdoor exposure when levels are elevated.\n")
	return b.String()
}

// smsBody builds a short text favoring the most severe alerts, capped near
// the single-segment SMS limit.
func smsBody(loc subscription.Location, alerts []forecast.Alert) string {
	ordered := append([]forecast.Alert(nil), alerts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Severity, ordered[j].Severity
		return a != b && a.AtLeast(b)
	})

	body := fmt.Sprintf("AirSentry %s: ", formatLocation(loc))
	for i, a := range ordered {
		part := fmt.Sprintf("%s in %dh", strings.ToUpper(string(a.Severity)), a.HoursUntil)
		if i > 0 {
			part = "; " + part
		}
		if len(body)+len(part) > smsMaxLen {
			break
		}
		body += part
	}
	return body
}

func worstSeverity(alerts []forecast.Alert) forecast.Severity {
	worst := forecast.SeverityInfo
	for _, a := range alerts {
		if a.Severity.AtLeast(worst) {
			worst = a.Severity
		}
	}
	return worst
}
