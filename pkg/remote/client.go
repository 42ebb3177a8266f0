package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mailvault/pkg/backup"
	"mailvault/pkg/errors"
	"mailvault/pkg/logger"
)

const defaultTimeout = 30 * time.Second

// Client talks to the mailbox API over HTTP. It performs no retries of its
// own: errors are surfaced as *errors.APIError so the caller's rate limiter
// can classify and retry them.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	pageSize   int
	logger     logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithPageSize sets how many ids each list call requests.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an API client for the given base URL and bearer token.
func NewClient(baseURL, token string, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		token:      token,
		pageSize:   100,
		logger:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ backup.Fetcher = (*Client)(nil)

// ListMessageIDs returns one page of message ids matching the query.
func (c *Client) ListMessageIDs(ctx context.Context, query, pageToken string) (*backup.MessagePage, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	params.Set("maxResults", strconv.Itoa(c.pageSize))

	var resp listResponse
	if err := c.getJSON(ctx, "/messages?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	page := &backup.MessagePage{
		NextPageToken:      resp.NextPageToken,
		ResultSizeEstimate: resp.ResultSizeEstimate,
	}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.ID)
	}

	c.logger.DebugWithFields("listed message page", map[string]interface{}{
		"query":    query,
		"returned": len(page.IDs),
		"has_next": page.NextPageToken != "",
	})

	return page, nil
}

// FetchMessage retrieves a single message with its raw content.
func (c *Client) FetchMessage(ctx context.Context, id string) (*backup.Message, error) {
	var resp messageResponse
	if err := c.getJSON(ctx, "/messages/"+url.PathEscape(id)+"?format=raw", &resp); err != nil {
		return nil, err
	}

	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(resp.Raw)
	if err != nil {
		return nil, fmt.Errorf("decoding raw content of message %s: %w", id, err)
	}

	received := time.Now()
	if ms, err := strconv.ParseInt(resp.InternalDate, 10, 64); err == nil {
		received = time.UnixMilli(ms)
	}

	return &backup.Message{
		ID:       resp.ID,
		Subject:  resp.Subject,
		Received: received,
		Raw:      raw,
	}, nil
}

// getJSON performs a GET and decodes the JSON response into target.
func (c *Client) getJSON(ctx context.Context, path string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures carry no status code and are not retried.
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"url":   req.URL.String(),
			"error": err.Error(),
		})
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if resp.StatusCode != http.StatusOK {
		return c.toAPIError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          req.URL.String(),
			"body_preview": preview,
		})
		return fmt.Errorf("parsing response: %w", err)
	}

	return nil
}

// toAPIError converts a non-200 response into an *errors.APIError, keeping
// the status code and any Retry-After hint.
func (c *Client) toAPIError(resp *http.Response) error {
	message := resp.Status

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(body) > 0 {
		var envelope errorResponse
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			message = envelope.Error.Message
		}
	}

	apiErr := &errors.APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
	}

	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	c.logger.WarnWithFields("API error response", map[string]interface{}{
		"url":     resp.Request.URL.String(),
		"status":  resp.StatusCode,
		"message": message,
		"type":    string(apiErr.Type()),
	})

	return apiErr
}
