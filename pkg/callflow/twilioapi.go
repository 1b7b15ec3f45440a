package callflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig carries the per-request telephony credentials. Callers supply
// them on each trigger; nothing is persisted.
type TwilioConfig struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	FromNumber string `json:"from_number"`
	BaseURL    string `json:"base_url,omitempty"`
}

func (c TwilioConfig) valid() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// TwilioClient creates outbound calls through the provider REST API.
type TwilioClient struct {
	client *http.Client
}

func NewTwilioClient() *TwilioClient {
	return &TwilioClient{client: http.DefaultClient}
}

// CreateCall dials `to` with answering-machine detection enabled. The
// provider fetches controlURL once the call is answered and posts terminal
// status changes to statusURL.
func (t *TwilioClient) CreateCall(ctx context.Context, cfg TwilioConfig, to, controlURL, statusURL string) (string, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultTwilioBaseURL
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", base, cfg.AccountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", cfg.FromNumber)
	form.Set("Url", controlURL)
	form.Set("MachineDetection", "Enable")
	form.Set("StatusCallback", statusURL)
	form.Set("StatusCallbackEvent", "completed")
	form.Set("StatusCallbackMethod", "POST")

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(cfg.AccountSID, cfg.AuthToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("twilio response read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio error: %s (status %d)", string(body), resp.StatusCode)
	}

	var out struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("twilio response parse: %w", err)
	}
	return out.SID, nil
}

// SanitizePhone keeps digits and a single leading plus sign.
func SanitizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
