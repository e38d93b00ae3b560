package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"bookmart/pkg/domain"
	"bookmart/pkg/netretry"
)

// CodeInvalidRefresh is the error code the store API attaches to
// invalid or expired refresh tokens.
const CodeInvalidRefresh = "AUTH_INVALID_REFRESH"

// Client calls the session confirmation endpoint of the store API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	exec       *netretry.Executor
}

// APIError represents a store API error response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a confirmation client. The HTTP client and retry
// executor are injected so the process owns their lifecycle.
func NewClient(baseURL string, httpClient *http.Client, exec *netretry.Executor) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if exec == nil {
		exec = netretry.New(netretry.Options{})
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		exec:       exec,
	}
}

// Confirm posts an auth event for server-side confirmation.
func (c *Client) Confirm(ctx context.Context, event domain.AuthEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode auth event: %w", err)
	}
	resp, err := c.exec.Do(ctx, func(attemptCtx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/session/confirm", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// IsAuthInvalid reports whether the confirmation failed because the
// refresh token is invalid or expired.
func IsAuthInvalid(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status < 400 || apiErr.Status >= 500 {
		return false
	}
	if apiErr.Code == CodeInvalidRefresh {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "invalid refresh") || strings.Contains(msg, "expired refresh")
}

// IsRateLimited reports whether the server answered 429.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}

func decodeAPIError(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp)
	msg := errResp.Error
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code)}
}
