package openphone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/leadline/crm-call-sync/pkg/logger"
	"go.uber.org/zap"
)

// Configuration errors are surfaced immediately to callers of outward-facing
// integration calls and never silently degrade.
var (
	ErrMissingAPIKey      = errors.New("openphone: API key not configured")
	ErrMissingPhoneNumber = errors.New("openphone: phone number ID not configured")
)

const defaultBaseURL = "https://api.openphone.com"

// ClientConfig holds the OpenPhone API client configuration.
type ClientConfig struct {
	APIKey        string
	PhoneNumberID string
	BaseURL       string
}

// Client is a thin HTTP client for the OpenPhone REST API.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new OpenPhone API client.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Call is a call resource returned by the OpenPhone API.
type Call struct {
	ID          string     `json:"id"`
	Direction   string     `json:"direction"`
	From        string     `json:"from"`
	To          string     `json:"to"`
	Status      string     `json:"status"`
	Duration    int        `json:"duration"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

type callResponse struct {
	Data Call `json:"data"`
}

type callListResponse struct {
	Data []Call `json:"data"`
}

// CreateCall places an outbound call from the configured phone number. The
// provider call ID is returned synchronously and is the deterministic
// correlation key stored on the durable record at dial time.
func (c *Client) CreateCall(ctx context.Context, to string) (*Call, error) {
	if c.config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if c.config.PhoneNumberID == "" {
		return nil, ErrMissingPhoneNumber
	}

	payload, err := json.Marshal(map[string]string{
		"phoneNumberId": c.config.PhoneNumberID,
		"to":            to,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode call request: %w", err)
	}

	var resp callResponse
	if err := c.do(ctx, http.MethodPost, "/v1/calls", bytes.NewReader(payload), &resp); err != nil {
		return nil, err
	}

	logger.Base().Info("outbound call placed",
		zap.String("call_id", resp.Data.ID),
		zap.String("to", to),
	)
	return &resp.Data, nil
}

// ListCalls fetches recent calls involving the given participant number since
// the given time. Used by the backfill trigger.
func (c *Client) ListCalls(ctx context.Context, participant string, since time.Time, maxResults int) ([]Call, error) {
	if c.config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if c.config.PhoneNumberID == "" {
		return nil, ErrMissingPhoneNumber
	}

	q := url.Values{}
	q.Set("phoneNumberId", c.config.PhoneNumberID)
	if participant != "" {
		q.Set("participants", participant)
	}
	if !since.IsZero() {
		q.Set("createdAfter", since.UTC().Format(time.RFC3339))
	}
	if maxResults > 0 {
		q.Set("maxResults", strconv.Itoa(maxResults))
	}

	var resp callListResponse
	if err := c.do(ctx, http.MethodGet, "/v1/calls?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openphone request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("openphone %s %s returned %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode openphone response: %w", err)
		}
	}
	return nil
}
