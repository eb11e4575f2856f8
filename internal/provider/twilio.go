package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dentalops/recallbridge/internal/config"
)

// TwilioClient sends messages through the Twilio Messages API using a
// messaging service SID, so number selection stays on the provider side.
type TwilioClient struct {
	accountSID          string
	authToken           string
	messagingServiceSID string
	baseURL             string
	httpClient          *http.Client
}

// NewTwilioClient builds a client from provider configuration.
func NewTwilioClient(cfg config.ProviderConfig) *TwilioClient {
	return &TwilioClient{
		accountSID:          cfg.AccountSID,
		authToken:           cfg.AuthToken,
		messagingServiceSID: cfg.MessagingServiceSID,
		baseURL:             strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:          &http.Client{Timeout: 15 * time.Second},
	}
}

// twilioMessageResponse is the subset of the Messages API response the
// pipeline cares about.
type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send implements Sender. A non-2xx response is not an error at the Go
// level; it is reported through SendResult so the caller can record it on
// the row.
func (c *TwilioClient) Send(ctx context.Context, to, body, statusCallbackURL string) (SendResult, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("MessagingServiceSid", c.messagingServiceSID)
	form.Set("Body", body)
	if statusCallbackURL != "" {
		form.Set("StatusCallback", statusCallbackURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return SendResult{}, err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SendResult{HTTPStatus: resp.StatusCode}, err
	}

	var parsed twilioMessageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		// Keep the raw body as the error message when the provider answers
		// with something that is not JSON.
		return SendResult{
			HTTPStatus:   resp.StatusCode,
			ErrorMessage: truncate(string(raw), 512),
		}, nil
	}

	result := SendResult{
		ProviderMessageID: parsed.SID,
		HTTPStatus:        resp.StatusCode,
	}
	if !result.OK() {
		if parsed.Code != 0 {
			result.ErrorCode = fmt.Sprintf("%d", parsed.Code)
		}
		result.ErrorMessage = truncate(firstNonEmpty(parsed.Message, string(raw)), 512)
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
