// Package api is the HTTP client for the backend's request-response calls:
// thread listing and creation, message snapshots and credential verification.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/ragchat/internal/domain"
	"github.com/ashureev/ragchat/internal/shared"
)

// maxErrorBody bounds how much of an error response is read for its detail.
const maxErrorBody = 64 << 10

var errEmptyToken = errors.New("empty token")

// Client talks to the backend REST API. A Client without a token can only
// verify credentials; WithToken returns one that can call thread endpoints.
type Client struct {
	base     *url.URL
	token    string
	http     *http.Client
	observer RequestObserver
	logger   *slog.Logger
}

// RequestObserver is told about every completed request.
type RequestObserver interface {
	RecordAPIRequest(op, status string, duration time.Duration)
}

// VerifyResult is the backend's answer to a successful verification.
type VerifyResult struct {
	UserID string `json:"user_id"`
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: scheme must be http or https", baseURL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   u,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// WithToken returns a copy of c that sends token as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// WithObserver returns a copy of c that reports requests to o.
func (c *Client) WithObserver(o RequestObserver) *Client {
	cp := *c
	cp.observer = o
	return &cp
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// ListThreads returns the user's threads.
func (c *Client) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	var out []domain.Thread
	if err := c.do(ctx, "list threads", http.MethodGet, "/threads", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateThread asks the backend for a new, empty thread.
func (c *Client) CreateThread(ctx context.Context) (domain.Thread, error) {
	var out domain.Thread
	if err := c.do(ctx, "create thread", http.MethodPost, "/threads", &out); err != nil {
		return domain.Thread{}, err
	}
	return out, nil
}

// ListMessages returns the ordered messages of threadID.
func (c *Client) ListMessages(ctx context.Context, threadID int64) ([]domain.Message, error) {
	var out []domain.Message
	path := "/threads/" + strconv.FormatInt(threadID, 10) + "/messages"
	if err := c.do(ctx, "load messages", http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ThreadID == 0 {
			out[i].ThreadID = threadID
		}
	}
	return out, nil
}

// Verify checks a credential. A rejected credential yields an *shared.AuthError.
func (c *Client) Verify(ctx context.Context, token string) (VerifyResult, error) {
	if strings.TrimSpace(token) == "" {
		return VerifyResult{}, &shared.AuthError{Detail: "token is required", Err: errEmptyToken}
	}
	var out VerifyResult
	path := "/auth/verify?" + url.Values{"token": []string{token}}.Encode()
	if err := c.do(ctx, "verify credential", http.MethodPost, path, &out); err != nil {
		return VerifyResult{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, out any) error {
	target, err := c.base.Parse(c.base.Path + path)
	if err != nil {
		return &shared.FetchError{Op: op, Err: fmt.Errorf("build url: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return &shared.FetchError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(op, "error", time.Since(start))
		c.logger.Warn("API request failed", "op", op, "error", err)
		return &shared.FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.observe(op, strconv.Itoa(resp.StatusCode), time.Since(start))

	c.logger.Debug("API request",
		"op", op,
		"method", method,
		"path", target.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &shared.FetchError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) observe(op, status string, d time.Duration) {
	if c.observer != nil {
		c.observer.RecordAPIRequest(op, status, d)
	}
}

// statusError converts a non-2xx response. 401 and 403 are credential
// problems; everything else is a failed fetch carrying the server detail.
func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := errorDetail(raw)
	base := fmt.Errorf("%s: %s", op, resp.Status)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &shared.AuthError{Status: resp.StatusCode, Detail: detail, Err: base}
	}
	return &shared.FetchError{Op: op, Status: resp.StatusCode, Detail: detail, Err: base}
}

// errorDetail extracts {"detail": ...} from an error body. Non-string details
// (validation error lists) are returned as raw JSON.
func errorDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return strings.TrimSpace(string(raw))
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}
	return string(body.Detail)
}
