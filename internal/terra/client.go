// Package terra talks to the health-data aggregator's REST API and verifies
// its webhook signatures.
package terra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/healthsync/internal/domain"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.tryterra.co"

const maxErrorBody = 1024

// Categories pulled during a historical backfill, in request order.
var BackfillCategories = []domain.DataType{
	domain.DataTypeBody,
	domain.DataTypeDaily,
	domain.DataTypeSleep,
	domain.DataTypeActivity,
}

// APIError is returned for non-2xx responses and for 2xx bodies that carry an error field.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
	URL        string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Body != "" {
		return fmt.Sprintf("terra api %s (status %d): %s", msg, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("terra api %s (status %d)", msg, e.StatusCode)
}

// Response is the body of a category pull.
type Response struct {
	Status string           `json:"status,omitempty"`
	Type   string           `json:"type,omitempty"`
	Data   []map[string]any `json:"data"`
	Error  string           `json:"error,omitempty"`
}

// WidgetSession is the account-linking session returned by the provider.
type WidgetSession struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// ClientConfig configures the API client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	DevID      string
	Timeout    time.Duration
	HTTPClient *http.Client
	// SuccessRedirectURL and FailureRedirectURL are passed to widget sessions.
	SuccessRedirectURL string
	FailureRedirectURL string
}

// Client is the provider API client.
type Client struct {
	baseURL    string
	apiKey     string
	devID      string
	successURL string
	failureURL string
	httpClient *http.Client
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		devID:      cfg.DevID,
		successURL: cfg.SuccessRedirectURL,
		failureURL: cfg.FailureRedirectURL,
		httpClient: httpClient,
	}
}

// Fetch pulls one category of records for externalUserID between start and end (inclusive dates).
func (c *Client) Fetch(ctx context.Context, category domain.DataType, externalUserID string, start, end time.Time) (*Response, error) {
	q := url.Values{}
	q.Set("user_id", externalUserID)
	q.Set("start_date", start.UTC().Format(time.DateOnly))
	q.Set("end_date", end.UTC().Format(time.DateOnly))

	var resp Response
	if err := c.do(ctx, http.MethodGet, "/"+string(category)+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.Error}
	}
	return &resp, nil
}

// GenerateWidgetSession creates an account-linking session tagged with referenceID.
func (c *Client) GenerateWidgetSession(ctx context.Context, referenceID string, providers []string) (*WidgetSession, error) {
	body := map[string]any{
		"language":     "en",
		"reference_id": referenceID,
	}
	if c.successURL != "" {
		body["auth_success_redirect_url"] = c.successURL
	}
	if c.failureURL != "" {
		body["auth_failure_redirect_url"] = c.failureURL
	}
	if len(providers) > 0 {
		body["providers"] = strings.Join(providers, ",")
	}
	var session WidgetSession
	if err := c.do(ctx, http.MethodPost, "/v2/auth/generateWidgetSession", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Deauthenticate revokes the provider account. The provider follows up with a deauth webhook.
func (c *Client) Deauthenticate(ctx context.Context, externalUserID string) error {
	return c.do(ctx, http.MethodDelete, "/auth/deauthenticateUser", map[string]string{"user_id": externalUserID}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("dev-id", c.devID)
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("terra %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		text := string(data)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody] + "..."
		}
		return &APIError{StatusCode: resp.StatusCode, Body: text, URL: req.URL.Path}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode terra response: %w", err)
	}
	return nil
}
