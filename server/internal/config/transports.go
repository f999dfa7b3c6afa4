package config

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/pulsewatch/pulsewatch/server/internal/notify"
)

// Transports builds the notification transports enabled in n. Transports
// that fail to build are skipped and their errors returned together, so a
// single bad webhook does not disable email or SMS.
func (n NotifyConfig) Transports() ([]notify.Transport, *notify.Email, error) {
	var (
		out   []notify.Transport
		email *notify.Email
		errs  error
	)

	if n.Email.Enabled() {
		e, err := notify.NewEmail(notify.EmailConfig{
			Host:     n.Email.Host,
			Port:     n.Email.Port,
			Username: n.Email.Username,
			Password: n.Email.Password(),
			From:     n.Email.From,
			To:       n.Email.To,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("email: %w", err))
		} else {
			email = e
			out = append(out, e)
		}
	}

	if n.SMS.Enabled() {
		s, err := notify.NewSMS(notify.SMSConfig{
			AccountSID: n.SMS.AccountSID,
			AuthToken:  n.SMS.AuthToken(),
			From:       n.SMS.From,
			To:         n.SMS.To,
			BaseURL:    n.SMS.BaseURL,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sms: %w", err))
		} else {
			out = append(out, s)
		}
	}

	perType := make(map[string]int, len(n.Webhooks))
	for _, wc := range n.Webhooks {
		perType[wc.Type]++
	}
	for i, wc := range n.Webhooks {
		w, err := notify.NewWebhook(wc.Type, wc.URL())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("webhooks[%d]: %w", i, err))
			continue
		}
		// A type used more than once is keyed by config index.
		if perType[wc.Type] > 1 {
			w.Named(fmt.Sprintf("webhook:%s:%d", wc.Type, i))
		}
		out = append(out, w)
	}

	return out, email, errs
}
