package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/launchkit/service-core/internal/config"
)

// Message is a plain-text outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages. Delivery goes through net/smtp; development
// deployments fall back to a logging mailer when SMTP is not configured.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// New picks an implementation based on configuration.
func New(cfg config.SMTP, logger *zap.SugaredLogger) Mailer {
	if cfg.Host == "" || cfg.FromEmail == "" {
		return &LogMailer{logger: logger}
	}
	return &SMTPMailer{cfg: cfg}
}

// SMTPMailer sends through a configured SMTP relay.
type SMTPMailer struct {
	cfg config.SMTP
}

func (m *SMTPMailer) Send(_ context.Context, msg Message) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	from := m.cfg.FromEmail
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.FromEmail)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	if err := smtp.SendMail(addr, auth, m.cfg.FromEmail, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogMailer logs messages instead of delivering them. Used in development
// so magic links remain retrievable without an SMTP relay.
type LogMailer struct {
	logger *zap.SugaredLogger
	sent   []Message
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.sent = append(m.sent, msg)
	if m.logger != nil {
		m.logger.Infow("mail (not delivered, smtp unconfigured)",
			"to", msg.To,
			"subject", msg.Subject,
			"body", msg.Body,
		)
	}
	return nil
}

// Sent exposes captured messages for tests.
func (m *LogMailer) Sent() []Message { return m.sent }
