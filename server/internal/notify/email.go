package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/types"
)

// EmailConfig describes an SMTP relay and the emergency recipients.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email delivers notices over SMTP.
type Email struct {
	cfg  EmailConfig
	send sendFunc // injectable for tests
	now  func() time.Time
}

// NewEmail returns an SMTP transport. PLAIN auth is used when a username is
// configured.
func NewEmail(cfg EmailConfig) (*Email, error) {
	if cfg.Host == "" {
		return nil, errors.New("notify: email host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("notify: email from is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Email{cfg: cfg, send: smtp.SendMail, now: time.Now}, nil
}

// Name implements Transport.
func (e *Email) Name() string { return "email" }

// SendEmergency mails the emergency notice to the configured recipients.
func (e *Email) SendEmergency(ctx context.Context, s types.Sample) error {
	if len(e.cfg.To) == 0 {
		return errors.New("no emergency recipients configured")
	}
	return e.deliver(ctx, e.cfg.To, emergencySubject, emergencyText(s, true))
}

// SendReport mails a health report summary to a single address.
func (e *Email) SendReport(ctx context.Context, to string, r Report) error {
	if to == "" {
		return errors.New("notify: report recipient is required")
	}
	return e.deliver(ctx, []string{to}, reportSubject, reportText(r))
}

// deliver runs the blocking SMTP exchange and gives up when ctx ends. The
// exchange itself is abandoned, not interrupted.
func (e *Email) deliver(ctx context.Context, to []string, subject, body string) error {
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	msg := e.compose(to, subject, body)

	done := make(chan error, 1)
	go func() { done <- e.send(addr, auth, e.cfg.From, to, msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func (e *Email) compose(to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
