package transport

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"wisefido-escalation/internal/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SMTPEmail SMTP 邮件通道
type SMTPEmail struct {
	addr     string
	from     string
	auth     smtp.Auth
	logger   *zap.Logger
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPEmail 创建邮件通道
func NewSMTPEmail(cfg config.EmailConfig, logger *zap.Logger) *SMTPEmail {
	var auth smtp.Auth
	if cfg.Username != "" {
		host := cfg.Addr
		if i := strings.Index(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return &SMTPEmail{
		addr:     cfg.Addr,
		from:     cfg.From,
		auth:     auth,
		logger:   logger,
		sendMail: smtp.SendMail,
	}
}

// SendEmail sends one multipart/alternative message (plain text + HTML).
// net/smtp has no context support; the dispatcher enforces its timeout by
// treating a slow send as a transient failure on the next attempt.
func (e *SMTPEmail) SendEmail(ctx context.Context, to, subject, html, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("email send canceled: %w", err)
	}

	messageID := uuid.New().String()
	boundary := "wisefido-" + messageID

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Message-ID: <%s@wisefido>\r\n", messageID)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(text)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	if err := e.sendMail(e.addr, e.auth, e.from, []string{to}, []byte(b.String())); err != nil {
		return "", fmt.Errorf("smtp send failed: %w", err)
	}

	return messageID, nil
}
