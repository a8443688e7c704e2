// Package messaging delivers caregiver notifications.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// TwilioBaseURL is the production REST API host.
const TwilioBaseURL = "https://api.twilio.com"

// TwilioOption configures the gateway.
type TwilioOption func(*Twilio)

// WithTwilioBaseURL overrides the API host.
func WithTwilioBaseURL(u string) TwilioOption {
	return func(t *Twilio) { t.baseURL = u }
}

// WithTwilioTimeout sets the HTTP client timeout.
func WithTwilioTimeout(d time.Duration) TwilioOption {
	return func(t *Twilio) { t.http.Timeout = d }
}

// Twilio sends SMS through the Twilio Messages API.
type Twilio struct {
	accountSID string
	authToken  string
	baseURL    string
	http       *http.Client
	log        *logger.Logger
}

var _ domain.MessagingGateway = (*Twilio)(nil)

// NewTwilio creates a gateway for the given account.
func NewTwilio(accountSID, authToken string, log *logger.Logger, opts ...TwilioOption) *Twilio {
	t := &Twilio{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    TwilioBaseURL,
		http:       &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type twilioMessage struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"` // set on errors
	Code    int    `json:"code"`
}

// Send implements domain.MessagingGateway and returns the message SID.
func (t *Twilio) Send(ctx context.Context, to, from, body string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio: create request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	t.log.Debug("twilio: sending sms to %s (%d chars)", to, len(body))

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: twilio request failed: %w", domain.ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: twilio read: %w", domain.ErrGateway, err)
	}

	var msg twilioMessage
	_ = json.Unmarshal(raw, &msg)
	if resp.StatusCode >= 300 {
		detail := msg.Message
		if detail == "" {
			detail = resp.Status
		}
		return "", fmt.Errorf("%w: twilio %d: %s", domain.ErrGateway, resp.StatusCode, detail)
	}
	if msg.SID == "" {
		return "", fmt.Errorf("%w: twilio response without sid", domain.ErrGateway)
	}

	t.log.Info("twilio: sms %s queued (%s)", msg.SID, msg.Status)
	return msg.SID, nil
}
