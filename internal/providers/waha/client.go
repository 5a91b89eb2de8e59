package waha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/waha-notification-bridge/internal/config"
)

const defaultBodyLimit int64 = 16 * 1024

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises the gateway client.
type Option func(*Client)

// WithHTTPClient replaces both the status and send HTTP clients.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.statusClient = client
			c.sendClient = client
		}
	}
}

// WithBodyLimit adjusts how many bytes are retained from response bodies.
func WithBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// Client talks to the WAHA REST API. It never retries: every failure is
// categorised and returned to the caller.
type Client struct {
	logger         zerolog.Logger
	baseURL        string
	defaultSession string
	apiKey         string
	authType       string
	debug          bool
	sendTimeout    time.Duration
	statusClient   HTTPClient
	sendClient     HTTPClient
	maxBodyBytes   int64
}

// NewClient constructs a gateway client from configuration.
func NewClient(cfg config.GatewayConfig, logger zerolog.Logger, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("waha client: base url is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	session := strings.TrimSpace(cfg.Session)
	if session == "" {
		session = "default"
	}
	authType := cfg.AuthType
	if authType == "" {
		authType = config.AuthTypeAPIKey
	}

	sendTimeout := secondsOr(cfg.SendTimeoutSec, 60)
	connectTimeout := secondsOr(cfg.ConnectTimeout, 10)
	statusTimeout := secondsOr(cfg.StatusTimeout, 10)

	c := &Client{
		logger:         logger,
		baseURL:        base,
		defaultSession: session,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		authType:       authType,
		debug:          cfg.Debug,
		sendTimeout:    sendTimeout,
		statusClient:   &http.Client{Timeout: statusTimeout},
		sendClient: &http.Client{
			Timeout: sendTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSHandshakeTimeout: connectTimeout,
			},
		},
		maxBodyBytes: defaultBodyLimit,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// DefaultSession returns the session used when callers pass an empty name.
func (c *Client) DefaultSession() string {
	return c.defaultSession
}

// CheckReadiness fetches the session document and reports its state. It does
// not decide whether the session can send; see SessionStatus.CanSend.
func (c *Client) CheckReadiness(ctx context.Context, session string) (*SessionStatus, error) {
	session = c.session(session)
	endpoint := fmt.Sprintf("%s/api/sessions/%s", c.baseURL, url.PathEscape(session))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("waha client: new request: %w", err)
	}
	c.applyHeaders(req)

	resp, err := c.statusClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("waha client: session status: %w", ctxErr)
		}
		return nil, fmt.Errorf("%w: could not reach %s: %w", ErrGatewayUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: session '%s' not found, create it in the WAHA dashboard first", ErrSessionNotFound, session)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w (401 Unauthorized) at %s: %s; response: %s",
			ErrAuthFailure, endpoint, authHint(c.apiKey != "", len(c.apiKey)), strings.TrimSpace(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &GatewayError{Code: resp.StatusCode, Body: body, URL: endpoint, Session: session, Hint: statusHint(resp.StatusCode, session)}
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("%w: session status for '%s' is not a JSON object: %w", ErrGatewayUnavailable, session, err)
	}

	status := parseSessionStatus(doc)
	c.logger.Debug().
		Str("session", session).
		Str("status", status.Status).
		Bool("ready", status.Ready).
		Bool("has_identity", status.HasIdentity).
		Msg("waha session status")
	return status, nil
}

// SendText verifies the session can send and then posts a text message to
// chatID. An empty session falls back to the configured default.
func (c *Client) SendText(ctx context.Context, chatID, text, session string) (*SendResponse, error) {
	session = c.session(session)

	status, err := c.CheckReadiness(ctx, session)
	if err != nil {
		if categorised(err) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to check session '%s' status: %w", ErrGatewayUnavailable, session, err)
	}
	if !status.CanSend() {
		return nil, &SessionNotReadyError{
			Session:     session,
			Status:      status.Status,
			Ready:       status.Ready,
			Connected:   status.Connected,
			HasIdentity: status.HasIdentity,
		}
	}

	endpoint := c.baseURL + "/api/sendText"
	payload, err := json.Marshal(map[string]string{
		"chatId":  chatID,
		"text":    text,
		"session": session,
	})
	if err != nil {
		return nil, fmt.Errorf("waha client: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("waha client: new request: %w", err)
	}
	c.applyHeaders(req)

	if c.debug {
		c.logger.Debug().
			Str("url", endpoint).
			Str("session", session).
			Str("chat_id", chatID).
			Str("auth_type", c.authType).
			Bool("auth_header", c.hasKey()).
			Msg("waha send request")
	}

	resp, err := c.sendClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err, session, chatID)
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	if err := c.classify(resp.StatusCode, body, endpoint, session, chatID); err != nil {
		c.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("session", session).
			Str("chat_id", chatID).
			Err(err).
			Msg("waha send failed")
		return nil, err
	}

	out := &SendResponse{StatusCode: resp.StatusCode, Raw: body}
	var data any
	if strings.TrimSpace(body) != "" && json.Unmarshal([]byte(body), &data) == nil {
		out.Data = data
	} else if strings.TrimSpace(body) != "" {
		out.Data = body
	}
	return out, nil
}

func (c *Client) classify(code int, body, endpoint, session, chatID string) error {
	switch {
	case code == 0 || (code >= 500 && strings.Contains(strings.ToLower(body), "aborted")):
		return fmt.Errorf("%w: session '%s' may be disconnected or not ready, or chat id '%s' is invalid (status %d)",
			ErrChannelAborted, session, chatID, code)
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w (401 Unauthorized) at %s: %s; response: %s",
			ErrAuthFailure, endpoint, authHint(c.apiKey != "", len(c.apiKey)), strings.TrimSpace(body))
	case code < 200 || code >= 300:
		return &GatewayError{
			Code:    code,
			Body:    body,
			URL:     endpoint,
			Session: session,
			ChatID:  chatID,
			Hint:    statusHint(code, session),
		}
	default:
		return nil
	}
}

func (c *Client) transportError(ctx context.Context, err error, session, chatID string) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return fmt.Errorf("waha client: send: %w", ctx.Err())
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: request to %s timed out after %s (session '%s', chat '%s'): %w",
			ErrNetwork, c.baseURL, c.sendTimeout, session, chatID, err)
	}
	return fmt.Errorf("%w: could not connect to WAHA server at %s: %w", ErrNetwork, c.baseURL, err)
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !c.hasKey() {
		return
	}
	switch c.authType {
	case config.AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	case config.AuthTypeAPIKey:
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}

func (c *Client) hasKey() bool {
	return c.authType != config.AuthTypeNone && c.apiKey != ""
}

func (c *Client) session(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return c.defaultSession
}

func (c *Client) readBody(rc io.ReadCloser) (string, error) {
	if rc == nil {
		return "", nil
	}
	data, err := io.ReadAll(io.LimitReader(rc, c.maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("waha client: read body: %w", err)
	}
	return string(data), nil
}

func categorised(err error) bool {
	for _, target := range []error{ErrGatewayUnavailable, ErrSessionNotFound, ErrAuthFailure, ErrGatewayError} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func secondsOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
