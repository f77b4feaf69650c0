package channels

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
)

// smtpSendFunc matches smtp.SendMail; swapped in tests.
type smtpSendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender delivers messages over SMTP using the email channel config.
type EmailSender struct {
	send smtpSendFunc
}

// NewEmailSender creates an SMTP sender.
func NewEmailSender() *EmailSender {
	return &EmailSender{send: smtp.SendMail}
}

// newEmailSenderWithTransport is the test constructor.
func newEmailSenderWithTransport(send smtpSendFunc) *EmailSender {
	return &EmailSender{send: send}
}

func (s *EmailSender) Channel() id.Channel { return id.ChannelEmail }

// Send builds a minimal RFC 5322 message and hands it to the configured
// SMTP relay. The generated Message-ID doubles as the provider message id.
func (s *EmailSender) Send(ctx context.Context, req SendRequest) (string, error) {
	cfg := req.Config
	if cfg.SMTPHost == "" || cfg.FromAddress == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "email channel is not fully configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, port)

	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}

	domain := cfg.FromAddress
	if at := strings.LastIndexByte(domain, '@'); at >= 0 {
		domain = domain[at+1:]
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)

	subject := req.Subject
	if subject == "" {
		subject = "Message from GlobalReach"
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", cfg.FromAddress)
	fmt.Fprintf(&msg, "To: %s\r\n", req.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(req.Body)
	msg.WriteString("\r\n")

	if err := s.send(addr, auth, cfg.FromAddress, []string{req.To}, []byte(msg.String())); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "smtp delivery failed")
	}
	return messageID, nil
}
