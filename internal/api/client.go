// Package api is a thin JSON client for the campus chat REST endpoints the
// terminal client needs: login, token refresh, the current user, access
// checks and chat lookups. Token refresh on 401 is left to the caller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/campuschat/client/internal/protocol"
)

// maxBody caps how much of a response body is read.
const maxBody = 4 << 20

// Config holds REST client settings.
type Config struct {
	BaseURL    string        // e.g. http://localhost:8000
	Timeout    time.Duration // per request, used when HTTPClient is nil
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8000",
		Timeout: 10 * time.Second,
	}
}

// Client calls the REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates the base url and returns a Client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	u, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: BaseURL %q must be http or https", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = DefaultConfig().Timeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "api"),
	}, nil
}

// ---------------------------------------------------------------------------
// Auth endpoints
// ---------------------------------------------------------------------------

// AuthURL returns the Google consent URL that starts the login flow.
func (c *Client) AuthURL(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/google/auth_url/", "", nil, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("api: empty auth url")
	}
	return out.URL, nil
}

// Login exchanges a Google authorization code for a token pair.
func (c *Client) Login(ctx context.Context, code string) (LoginResponse, error) {
	var out LoginResponse
	body := map[string]string{"code": code}
	if err := c.do(ctx, http.MethodPost, "/auth/google/login/", "", body, &out); err != nil {
		return LoginResponse{}, err
	}
	if out.Access == "" {
		return LoginResponse{}, fmt.Errorf("api: login response has no access token")
	}
	return out, nil
}

// RefreshToken returns a new access token for refresh.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (string, error) {
	var out struct {
		Access string `json:"access"`
	}
	body := map[string]string{"refresh": refresh}
	if err := c.do(ctx, http.MethodPost, "/auth/token/refresh/", "", body, &out); err != nil {
		return "", err
	}
	if out.Access == "" {
		return "", fmt.Errorf("api: refresh response has no access token")
	}
	return out.Access, nil
}

// CurrentUser returns the profile the access token belongs to.
func (c *Client) CurrentUser(ctx context.Context, token string) (User, error) {
	var out User
	err := c.do(ctx, http.MethodGet, "/auth/user/", token, nil, &out)
	return out, err
}

// ---------------------------------------------------------------------------
// Chat and college endpoints
// ---------------------------------------------------------------------------

// ActiveChat reports the chat in progress, if any.
func (c *Client) ActiveChat(ctx context.Context, token string) (ActiveChat, error) {
	var out ActiveChat
	err := c.do(ctx, http.MethodGet, "/api/chat/active/", token, nil, &out)
	return out, err
}

// Chat returns a chat and its history. A chat that does not exist or is no
// longer available yields ErrNotFound; one the user may not read yields
// ErrForbidden.
func (c *Client) Chat(ctx context.Context, token, chatID string) (protocol.Chat, error) {
	var out protocol.Chat
	if chatID == "" {
		return out, fmt.Errorf("api: chat id is empty")
	}
	err := c.do(ctx, http.MethodGet, "/api/chat/"+url.PathEscape(chatID)+"/", token, nil, &out)
	return out, err
}

// CheckAccess returns the caller's access window state. The server answers
// a denial with 403 and the same body shape; that body is returned with a
// nil error since it is an answer, not a failure.
func (c *Client) CheckAccess(ctx context.Context, token string) (protocol.Access, error) {
	var out protocol.Access
	data, status, err := c.roundTrip(ctx, http.MethodGet, "/api/college/access/", token, nil)
	if err != nil {
		return out, err
	}
	if status == http.StatusForbidden {
		if jsonErr := json.Unmarshal(data, &out); jsonErr == nil && out.Message != "" {
			out.CanAccess = false
			return out, nil
		}
	}
	if err := c.decode(http.MethodGet, "/api/college/access/", status, data, &out); err != nil {
		return protocol.Access{}, err
	}
	return out, nil
}

// Activity returns the campus counters.
func (c *Client) Activity(ctx context.Context, token string) (protocol.Activity, error) {
	var out protocol.Activity
	err := c.do(ctx, http.MethodGet, "/api/college/activity/", token, nil, &out)
	return out, err
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// do performs a request and decodes a 2xx JSON body into out. Non-2xx
// responses become *StatusError.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	data, status, err := c.roundTrip(ctx, method, path, token, body)
	if err != nil {
		return err
	}
	return c.decode(method, path, status, data, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("api: encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, 0, fmt.Errorf("api: read %s %s response: %w", method, path, err)
	}
	c.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return data, resp.StatusCode, nil
}

func (c *Client) decode(method, path string, status int, data []byte, out any) error {
	if status < 200 || status > 299 {
		return &StatusError{StatusCode: status, Method: method, Path: path, Detail: detail(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decode %s %s response: %w", method, path, err)
	}
	return nil
}

// detail extracts a human-readable message from an error body.
func detail(data []byte) string {
	var body struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		switch {
		case body.Detail != "":
			return body.Detail
		case body.Error != "":
			return body.Error
		case body.Message != "":
			return body.Message
		}
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
