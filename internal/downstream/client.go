// Package downstream wraps the HTTP surface of the backend service that
// owns the business data. Every call authenticates with the delegated
// credential carried in the request context; the client is a fail-fast
// proxy, not a resilient one — the only credential handling it performs
// is clearing the delegation entry when the downstream rejects it.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/overseerhq/overseer/internal/delegation"
)

// DefaultTimeout bounds every downstream call so a hung request cannot
// stall the serving pipeline.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a downstream response body is read.
const maxResponseBytes = 4 << 20 // 4MB

// Client issues authenticated calls against the downstream service.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	delegations *delegation.Store
	logger      *slog.Logger
}

// NewClient creates a downstream client. A zero timeout falls back to
// DefaultTimeout. The delegation store is needed so a 401 can invalidate
// the rejected session credential.
func NewClient(baseURL string, timeout time.Duration, delegations *delegation.Store, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		delegations: delegations,
		logger:      logger,
	}
}

// ListUsers fetches one page of downstream users, optionally filtered.
func (c *Client) ListUsers(ctx context.Context, page, limit int, search string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if search != "" {
		q.Set("search", search)
	}
	return c.do(ctx, http.MethodGet, "/admin/users?"+q.Encode(), nil)
}

// GetUser fetches a single downstream user by ID.
func (c *Client) GetUser(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/admin/users/"+url.PathEscape(userID), nil)
}

// VerifyDevice marks one of the user's devices as verified.
func (c *Client) VerifyDevice(ctx context.Context, userID, deviceID string) (json.RawMessage, error) {
	body := map[string]string{"deviceId": deviceID}
	return c.do(ctx, http.MethodPost, "/admin/users/"+url.PathEscape(userID)+"/verify-device", body)
}

// DashboardStats fetches the downstream dashboard aggregates.
func (c *Client) DashboardStats(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/admin/dashboard/stats", nil)
}

// Ping reports whether the downstream service answers an authenticated
// request. It needs a delegated credential in ctx like any other call.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.DashboardStats(ctx)
	return err
}

// do performs one downstream call. It fails fast with ErrNoDelegatedTrust
// when the context carries no valid credential, attaches the credential as
// a bearer token otherwise, and never retries: a 401 clears the session's
// delegation entry and surfaces the failure so the caller can demand a
// fresh login.
func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	cred, ok := delegation.FromContext(ctx)
	if !ok || cred.Token == "" || cred.Expired() {
		return nil, ErrNoDelegatedTrust
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build downstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// The credential is presumed revoked or expired downstream. Clear
		// it so later calls fail fast; no automatic re-authentication.
		c.delegations.Clear(cred.SessionID)
		c.logger.Warn("delegated credential rejected by downstream",
			"method", method,
			"path", path,
		)
		return nil, &Error{Status: resp.StatusCode, Message: downstreamMessage(respBody)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Status: resp.StatusCode, Message: downstreamMessage(respBody)}
	}

	return json.RawMessage(respBody), nil
}

// downstreamMessage extracts the "message" field from a downstream error
// body, falling back to the raw body.
func downstreamMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	if len(body) == 0 {
		return "no response body"
	}
	return string(body)
}
