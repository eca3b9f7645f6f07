package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/mamashield/internal/observability"
	"github.com/ent0n29/mamashield/internal/privacy"
)

const (
	defaultBaseURL = "https://api.africastalking.com"
	defaultTimeout = 10 * time.Second
)

// Options configure the Africa's Talking client.
type Options struct {
	Username string
	APIKey   string
	BaseURL  string
	SenderID string
	Timeout  time.Duration
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// Client sends SMS via POST {base}/version1/messaging.
type Client struct {
	httpClient *http.Client
	username   string
	apiKey     string
	baseURL    string
	senderID   string
	timeout    time.Duration
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{},
		username:   opts.Username,
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		senderID:   strings.TrimSpace(opts.SenderID),
		timeout:    timeout,
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// Send delivers one SMS. Failures are logged and counted, never retried.
func (c *Client) Send(ctx context.Context, phone, message string) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("to", phone)
	form.Set("message", message)
	if c.senderID != "" {
		form.Set("from", c.senderID)
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost,
		c.baseURL+"/version1/messaging", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("apiKey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(phone, "transport", fmt.Errorf("send sms: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.fail(phone, fmt.Sprintf("%d", resp.StatusCode),
			fmt.Errorf("send sms: gateway status %d", resp.StatusCode))
	}

	var payload struct {
		SMSMessageData struct {
			Recipients []struct {
				Status     string `json:"status"`
				StatusCode int    `json:"statusCode"`
			} `json:"Recipients"`
		} `json:"SMSMessageData"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return c.fail(phone, "bad_response", fmt.Errorf("decode sms response: %w", err))
	}
	recipients := payload.SMSMessageData.Recipients
	if len(recipients) == 0 {
		return c.fail(phone, "no_recipients", fmt.Errorf("send sms: empty recipient list in response"))
	}
	if r := recipients[0]; r.Status != "Success" {
		return c.fail(phone, "rejected", fmt.Errorf("send sms: recipient status %q (code %d)", r.Status, r.StatusCode))
	}
	return nil
}

func (c *Client) fail(phone, code string, err error) error {
	if c.metrics != nil {
		c.metrics.ProviderErrors.WithLabelValues("sms", code).Inc()
	}
	c.logger.Error("sms send failed",
		zap.String("to", privacy.MaskPhone(phone)),
		zap.Error(err))
	return err
}
