package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/types"
)

// DefaultTwilioURL is the Twilio REST API root.
const DefaultTwilioURL = "https://api.twilio.com"

// SMSConfig holds Twilio credentials and numbers.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	BaseURL    string // DefaultTwilioURL when empty
}

// SMS delivers notices through the Twilio Messages API.
type SMS struct {
	cfg    SMSConfig
	client *http.Client
}

// NewSMS returns a Twilio transport.
func NewSMS(cfg SMSConfig) (*SMS, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("notify: sms account_sid and auth token are required")
	}
	if cfg.From == "" || cfg.To == "" {
		return nil, errors.New("notify: sms from and to numbers are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTwilioURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SMS{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}, nil
}

// Name implements Transport.
func (t *SMS) Name() string { return "sms" }

// SendEmergency texts the emergency notice.
func (t *SMS) SendEmergency(ctx context.Context, s types.Sample) error {
	return t.Send(ctx, emergencyText(s, false))
}

// Send texts an arbitrary message, such as a health update, to the
// configured number.
func (t *SMS) Send(ctx context.Context, body string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.cfg.BaseURL, url.PathEscape(t.cfg.AccountSID))
	form := url.Values{
		"To":   {t.cfg.To},
		"From": {t.cfg.From},
		"Body": {body},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("twilio returned HTTP %d: %s (code %d)", resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("twilio returned HTTP %d", resp.StatusCode)
	}
	return nil
}
