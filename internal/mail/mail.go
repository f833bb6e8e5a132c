// Package mail delivers outbound email for one-time codes and alerts.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/config"
	log "github.com/sirupsen/logrus"
)

// Sender delivers a single plain-text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ErrInvalidRecipient is returned when the destination address does not parse.
var ErrInvalidRecipient = errors.New("mail: invalid recipient")

// SMTPSender delivers mail through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	cfg  config.SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

// NewSender returns an SMTP sender when cfg has a host, else a sender that only logs.
func NewSender(cfg config.SMTPConfig) Sender {
	if strings.TrimSpace(cfg.Host) == "" {
		log.Warn("mail: smtp host not configured, messages will only be logged")
		return LogSender{}
	}
	return &SMTPSender{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if s == nil {
		return errors.New("mail: nil sender")
	}
	recipient, errParse := netmail.ParseAddress(strings.TrimSpace(to))
	if errParse != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecipient, errParse)
	}
	from := strings.TrimSpace(s.cfg.From)
	if from == "" {
		from = s.cfg.Username
	}
	fromHeader := (&netmail.Address{Name: s.cfg.FromName, Address: from}).String()
	msg := buildMessage(fromHeader, recipient.String(), subject, body, s.now())

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.send(addr, auth, from, []string{recipient.Address}, msg)
	}()
	select {
	case errSend := <-errCh:
		if errSend != nil {
			return fmt.Errorf("mail: send to %s: %w", recipient.Address, errSend)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mail: send to %s: %w", recipient.Address, ctx.Err())
	}
}

// buildMessage renders RFC 5322 headers and body with CRLF line endings.
func buildMessage(from, to, subject, body string, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("Date: " + now.UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// sanitizeHeader strips CR/LF so callers cannot inject headers.
func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, to, subject, _ string) error {
	log.WithFields(log.Fields{"to": to, "subject": subject}).Info("mail: delivery disabled, message dropped")
	return nil
}
