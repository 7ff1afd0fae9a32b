package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"fleetwatch/internal/models"
)

// EmailProvider delivers notifications over SMTP
type EmailProvider struct {
	addr string
	from string
	auth smtp.Auth

	// Swappable for tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailProvider creates an SMTP-backed provider. auth may be nil for
// unauthenticated relays.
func NewEmailProvider(addr, from string, auth smtp.Auth) *EmailProvider {
	return &EmailProvider{
		addr:     addr,
		from:     from,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// Send delivers one alert notification as a plain-text email
func (p *EmailProvider) Send(ctx context.Context, job *models.NotificationJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	alert := job.Alert
	subject := fmt.Sprintf("[%s] %s %s alert", strings.ToUpper(string(alert.Severity)),
		alert.DeviceID, alert.Metric)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", p.from)
	fmt.Fprintf(&b, "To: %s\r\n", job.Config.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "%s\r\n", alert.Message)
	fmt.Fprintf(&b, "Device: %s\r\nMetric: %s\r\nValue: %.2f\r\nThreshold: %.2f\r\n",
		alert.DeviceID, alert.Metric, alert.Value, alert.Threshold)

	if err := p.sendMail(p.addr, p.auth, p.from, []string{job.Config.Recipient}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
