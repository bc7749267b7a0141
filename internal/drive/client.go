// Package drive is the typed gateway to the Google Drive REST API. Every call
// sources its bearer token from the token manager and records the outcome on
// the user's sync status.
package drive

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
	"strings"
	"time"

	"github.com/pysugar/commshub/internal/logging"
	"github.com/pysugar/commshub/internal/util"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://www.googleapis.com/drive/v3"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
	DefaultTimeout   = 60 * time.Second
	DefaultRateLimit = 10 // requests per second

	DefaultPageSize = 100
	MaxPageSize     = 1000

	fileFields = "id,name,mimeType,parents,webViewLink,size,createdTime,modifiedTime"
)

// TokenSource is what the gateway needs from the token manager.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, userID string) (string, error)
	ForceRefresh(ctx context.Context, userID string) (string, error)
	RecordSuccess(ctx context.Context, userID string)
	RecordFailure(ctx context.Context, userID string, cause error)
}

// Client issues authenticated Drive calls on behalf of users.
type Client struct {
	baseURL    string
	uploadURL  string
	tokens     TokenSource
	httpClient *http.Client
	logger     *logging.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the metadata API base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithUploadURL sets the upload API base URL
func WithUploadURL(uploadURL string) ClientOption {
	return func(c *Client) {
		if uploadURL != "" {
			c.uploadURL = strings.TrimRight(uploadURL, "/")
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Drive client using tokens for authorization.
func NewClient(tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		uploadURL: DefaultUploadURL,
		tokens:    tokens,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  logging.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// request describes one Drive call. body is replayed on the single retry
// after a 401, so it is kept as bytes.
type request struct {
	method      string
	url         string
	endpoint    string
	body        []byte
	contentType string
	// progress, when set, receives upload percentages as the body is sent.
	progress func(int)
}

// do runs req for userID and decodes a JSON answer into out (nil to discard).
func (c *Client) do(ctx context.Context, userID string, req request, out any) error {
	token, err := c.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		c.tokens.RecordFailure(ctx, userID, err)
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// The stored expiry said the token was valid; get a fresh one once.
		resp.Body.Close()
		c.logger.Debug().Str("user_id", userID).Str("endpoint", req.endpoint).Msg("Drive answered 401, refreshing token")
		token, err = c.tokens.ForceRefresh(ctx, userID)
		if err != nil {
			return err
		}
		resp, err = c.send(ctx, req, token)
		if err != nil {
			c.tokens.RecordFailure(ctx, userID, err)
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp, req.endpoint)
		c.logger.Warn().
			Str("user_id", userID).
			Str("endpoint", req.endpoint).
			Int("status", apiErr.StatusCode).
			Str("message", apiErr.Message).
			Msg("Drive API error")
		c.tokens.RecordFailure(ctx, userID, apiErr)
		return apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			err = fmt.Errorf("failed to decode response: %w", err)
			c.tokens.RecordFailure(ctx, userID, err)
			return err
		}
	}

	c.tokens.RecordSuccess(ctx, userID)
	return nil
}

func (c *Client) send(ctx context.Context, req request, token string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
		if req.progress != nil {
			body = &progressReader{r: body, total: int64(len(req.body)), report: req.progress}
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if req.body != nil {
		httpReq.ContentLength = int64(len(req.body))
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	c.logger.Debug().Str("method", req.method).Str("endpoint", req.endpoint).Msg("Drive API request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

func newAPIError(resp *http.Response, endpoint string) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error.Message != "" {
		msg = payload.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    util.TruncateLog(msg, util.DefaultErrorMaxLen),
		Endpoint:   endpoint,
	}
}

func (c *Client) fileURL(fileID string, query url.Values) string {
	u := c.baseURL + "/files"
	if fileID != "" {
		u += "/" + url.PathEscape(fileID)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func clampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

// IsAPIError reports whether err is a Drive API error with the given status.
func IsAPIError(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

func pageQuery(q string, pageSize int, pageToken string) url.Values {
	v := url.Values{
		"q":        {q},
		"pageSize": {strconv.Itoa(clampPageSize(pageSize))},
		"fields":   {"nextPageToken,files(" + fileFields + ")"},
		"orderBy":  {"folder,name"},
	}
	if pageToken != "" {
		v.Set("pageToken", pageToken)
	}
	return v
}
