// Package unifi implements the client for local network controllers
// (UniFi-style REST APIs). It handles the two authentication modes the
// controller firmware supports (API-key header, session cookie + CSRF
// fallback), detects which of the two known API path prefixes the controller
// answers on, and normalizes the controller's varying response envelopes
// into plain object slices.
package unifi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/netsage/pkg/models"
)

// The two API path prefixes seen in the wild. Legacy controllers serve the
// network API at the root; UniFi-OS consoles proxy it under /proxy/network.
const (
	prefixLegacy  = ""
	prefixUniFiOS = "/proxy/network"
)

const (
	requestTimeout = 15 * time.Second
	authHintKey    = "verify the API key and that local API access is enabled on the controller"
)

// Client talks to one local controller. It owns all session state (cookies,
// CSRF token, detected prefix, committed auth mode); do not share one Client
// across concurrent logical requests -- re-authentication is serialized
// internally, but each request flow should construct or own its Client.
type Client struct {
	cfg    models.ControllerConfig
	http   *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	cookies     []*http.Cookie
	csrfToken   string
	prefix      string
	prefixKnown bool // true when the base URL names the prefix explicitly
	sessionAuth bool // committed to session auth after a key-auth rejection
}

// NewClient creates a client for the given controller configuration.
func NewClient(cfg models.ControllerConfig, logger *zap.Logger) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !cfg.VerifySSL, //nolint:gosec // G402: controllers ship self-signed certs
		},
		DisableKeepAlives: true,
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		http: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
			// The controller answers redirects with absolute URLs pointing at
			// its own idea of its hostname; following them breaks IP-based
			// configs, so handle every response where it lands.
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	c.cfg.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")
	if strings.Contains(c.cfg.BaseURL, prefixUniFiOS) {
		// Base URL names the proxy segment explicitly: trust it, and strip it
		// so path building stays uniform.
		c.cfg.BaseURL = strings.TrimSuffix(c.cfg.BaseURL, prefixUniFiOS)
		c.prefix = prefixUniFiOS
		c.prefixKnown = true
	}
	return c
}

// Name returns the configured display name.
func (c *Client) Name() string { return c.cfg.Name }

// ID returns the configured controller id.
func (c *Client) ID() string { return c.cfg.ID }

// Authenticate establishes a session on the controller, capturing the
// session cookie and CSRF token. The configured API key doubles as the
// login credential: "user:pass" keys split into the pair, anything else is
// used as the local admin password with the default username.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	username, password := splitCredential(c.cfg.APIKey)
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("marshal login body: %w", err)
	}

	// Candidate login endpoints in probe order. An explicitly configured
	// prefix pins the order to the matching firmware generation.
	type loginTarget struct {
		prefix string
		path   string
	}
	targets := []loginTarget{
		{prefixUniFiOS, "/api/auth/login"},
		{prefixLegacy, "/api/login"},
	}
	if c.prefixKnown {
		if c.prefix == prefixUniFiOS {
			targets = targets[:1]
		} else {
			targets = targets[1:]
		}
	}

	var lastErr error
	for _, t := range targets {
		resp, err := c.doRaw(ctx, http.MethodPost, c.cfg.BaseURL+t.path, body, authState{})
		if err != nil {
			var netErr net.Error
			if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
				lastErr = models.NewSourceError(models.ErrCodeConnection,
					fmt.Sprintf("controller %s is unreachable", c.cfg.BaseURL), err)
				continue
			}
			lastErr = err
			continue
		}

		switch {
		case resp.status == http.StatusOK:
			c.cookies = resp.cookies
			c.csrfToken = resp.csrfToken
			c.sessionAuth = true
			if !c.prefixKnown {
				c.prefix = t.prefix
			}
			c.logger.Debug("controller session established",
				zap.String("controller", c.cfg.Name),
				zap.String("prefix", t.prefix),
			)
			return nil
		case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
			return models.NewAuthError(
				fmt.Sprintf("controller %s rejected the credentials", c.cfg.Name),
				authHintKey,
			)
		default:
			lastErr = models.NewSourceError(models.ErrCodeUpstream,
				fmt.Sprintf("controller login returned status %d", resp.status), nil)
		}
	}

	if lastErr == nil {
		lastErr = models.NewSourceError(models.ErrCodeUpstream, "controller login failed", nil)
	}
	return lastErr
}

// apiRequest fetches a site-scoped endpoint ("stat/device", "rest/wlanconf")
// and returns the unwrapped payload. Auth handling is bounded: one
// upgrade-to-session retry on 401/403, one full-reset retry on a second
// 401/403, one prefix flip on 404 when the prefix was probed rather than
// configured. It never loops beyond that.
func (c *Client) apiRequest(ctx context.Context, endpoint string) ([]map[string]any, error) {
	endpoint = strings.TrimPrefix(endpoint, "/")

	authRetries := 0
	flippedPrefix := false

	for {
		resp, err := c.do(ctx, endpoint)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
				return nil, models.NewSourceError(models.ErrCodeConnection,
					fmt.Sprintf("controller %s is unreachable", c.cfg.BaseURL), err)
			}
			return nil, err
		}

		switch {
		case resp.status == http.StatusOK:
			return UnwrapEnvelope(resp.body), nil

		case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
			switch authRetries {
			case 0:
				// Key-only auth rejected: upgrade to session auth.
				if err := c.Authenticate(ctx); err != nil {
					return nil, err
				}
			case 1:
				// Session went stale mid-flight: drop everything and log in fresh.
				c.resetSession()
				if err := c.Authenticate(ctx); err != nil {
					return nil, err
				}
			default:
				return nil, models.NewAuthError(
					fmt.Sprintf("controller %s rejected the credentials after re-authentication", c.cfg.Name),
					authHintKey,
				)
			}
			authRetries++

		case resp.status == http.StatusNotFound && !c.prefixConfirmed() && !flippedPrefix:
			// The assumed prefix was wrong for this firmware; try the other one.
			c.flipPrefix()
			flippedPrefix = true

		case resp.status == http.StatusNotFound:
			return nil, models.NewSourceError(models.ErrCodeNotFound,
				fmt.Sprintf("endpoint %q not found on controller %s", endpoint, c.cfg.Name), nil)

		default:
			return nil, models.NewSourceError(models.ErrCodeUpstream,
				fmt.Sprintf("controller %s returned status %d for %q", c.cfg.Name, resp.status, endpoint), nil)
		}
	}
}

// do performs one site-scoped API request with whatever auth state the
// client currently holds.
func (c *Client) do(ctx context.Context, endpoint string) (*rawResponse, error) {
	c.mu.Lock()
	useSession := c.sessionAuth
	prefix := c.prefix
	c.mu.Unlock()

	url := fmt.Sprintf("%s%s/api/s/%s/%s", c.cfg.BaseURL, prefix, c.cfg.Site, endpoint)

	var auth authState
	c.mu.Lock()
	if useSession {
		auth.cookies = c.cookies
		auth.csrfToken = c.csrfToken
	} else {
		auth.apiKey = c.cfg.APIKey
	}
	c.mu.Unlock()

	return c.doRaw(ctx, http.MethodGet, url, nil, auth)
}

type rawResponse struct {
	status    int
	body      []byte
	cookies   []*http.Cookie
	csrfToken string
}

// authState is the snapshot of credentials attached to a single request.
type authState struct {
	apiKey    string
	cookies   []*http.Cookie
	csrfToken string
}

func (c *Client) doRaw(ctx context.Context, method, url string, body []byte, auth authState) (*rawResponse, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, ck := range auth.cookies {
		req.AddCookie(ck)
	}
	if auth.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", auth.csrfToken)
	}
	if auth.apiKey != "" {
		req.Header.Set("X-API-KEY", auth.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &rawResponse{
		status:    resp.StatusCode,
		body:      data,
		cookies:   resp.Cookies(),
		csrfToken: resp.Header.Get("X-CSRF-Token"),
	}, nil
}

// resetSession drops all cached session state so the next Authenticate
// starts from scratch.
func (c *Client) resetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = nil
	c.csrfToken = ""
	c.sessionAuth = false
	if !c.prefixKnown {
		c.prefix = prefixLegacy
	}
}

func (c *Client) prefixConfirmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefixKnown
}

func (c *Client) flipPrefix() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prefix == prefixLegacy {
		c.prefix = prefixUniFiOS
	} else {
		c.prefix = prefixLegacy
	}
	c.logger.Debug("flipped controller API prefix",
		zap.String("controller", c.cfg.Name),
		zap.String("prefix", c.prefix),
	)
}

// UnwrapEnvelope normalizes the controller's response envelope into a slice
// of objects. The rule is a fixed contract:
//
//	{"data": [...]}  -> the array
//	{"data": {...}}  -> one-element slice
//	[...]            -> the array itself
//	{...}            -> one-element slice
//	null / anything else -> empty slice
//
// Non-object array members are dropped; callers index fields, so a bare
// string in a data array cannot be represented.
func UnwrapEnvelope(body []byte) []map[string]any {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return []map[string]any{}
	}

	if m, ok := parsed.(map[string]any); ok {
		if data, present := m["data"]; present {
			parsed = data
		}
	}

	switch v := parsed.(type) {
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	case map[string]any:
		return []map[string]any{v}
	default:
		return []map[string]any{}
	}
}

// splitCredential turns the configured API key into a login pair. Keys of
// the form "user:pass" split; anything else is treated as the local admin
// password.
func splitCredential(key string) (username, password string) {
	if user, pass, ok := strings.Cut(key, ":"); ok && user != "" {
		return user, pass
	}
	return "admin", key
}
