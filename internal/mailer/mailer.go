// Package mailer delivers one self-addressed plain-text email per alert
// over SMTP. Every failure is returned per alert so a bad send never takes
// down the rest of the batch.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"healthwatch/internal/config"
	"healthwatch/internal/model"
)

// DefaultSubject is used when an alert arrives without one.
const DefaultSubject = "Healthwatch Alert"

const warningBar = "!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!"

// Mailer submits alerts through the configured SMTP account. Sender and
// recipient are both that account: these are operational self-alerts.
type Mailer struct {
	cfg config.SMTP
}

func New(cfg config.SMTP) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send submits exactly one message for the alert. headerTime is the
// already-rendered display timestamp; warning, when non-empty, is prepended
// as a prominent block so an operator who only reads email still sees it.
func (m *Mailer) Send(ctx context.Context, alert model.Alert, headerTime, warning string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.User); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(m.cfg.User); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(Subject(alert))
	msg.SetBodyString(mail.TypeTextPlain, Body(headerTime, alert.Body, warning))

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.User),
		mail.WithPassword(m.cfg.Pass),
		mail.WithTimeout(15 * time.Second),
	}
	if m.cfg.UseSSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send %q: %w", Subject(alert), err)
	}
	return nil
}

// Subject returns the alert's subject, or DefaultSubject when it has none.
func Subject(alert model.Alert) string {
	if alert.Subject == "" {
		return DefaultSubject
	}
	return alert.Subject
}

// Body assembles the message text: optional warning block, display
// timestamp, blank separator, alert body.
func Body(headerTime, body, warning string) string {
	var b strings.Builder
	if warning != "" {
		b.WriteString(warningBar + "\n")
		b.WriteString(warning + "\n")
		b.WriteString(warningBar + "\n\n")
	}
	fmt.Fprintf(&b, "Time: %s\n\n", headerTime)
	b.WriteString(body)
	return b.String()
}
