// Package notify sends run completion email.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Mailer sends plain-text notification mail over SMTP. A disabled mailer
// is valid and turns Send into a no-op.
type Mailer struct {
	enabled    bool
	addr       string
	sender     string
	recipients []string
	logger     *zap.Logger

	// send is swapped out in tests.
	send func(addr string, from string, to []string, msg []byte) error
}

func NewMailer(enabled bool, host string, port int, sender string, recipients []string, logger *zap.Logger) *Mailer {
	return &Mailer{
		enabled:    enabled,
		addr:       fmt.Sprintf("%s:%d", host, port),
		sender:     sender,
		recipients: recipients,
		logger:     logger,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

// Send delivers one message to all configured recipients. Delivery failure
// is logged and returned but callers treat mail as best effort.
func (m *Mailer) Send(subject, body string) error {
	if !m.enabled || len(m.recipients) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.sender)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	if err := m.send(m.addr, m.sender, m.recipients, []byte(b.String())); err != nil {
		m.logger.Warn("notification mail failed",
			zap.String("smtp_addr", m.addr),
			zap.Error(err))
		return fmt.Errorf("failed to send notification mail: %w", err)
	}
	m.logger.Info("notification mail sent",
		zap.String("subject", subject),
		zap.Int("recipients", len(m.recipients)))
	return nil
}
