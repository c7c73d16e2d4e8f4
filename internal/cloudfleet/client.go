// Package cloudfleet implements the client for the vendor-hosted fleet
// management API. Unlike the local controller API, the cloud surface is not
// contractually stable: routes and response envelopes differ by account tier
// and release wave. Every fetch therefore walks an ordered list of candidate
// endpoint paths and an ordered list of candidate envelope keys, taking the
// first that answers.
package cloudfleet

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/netsage/pkg/models"
)

const requestTimeout = 15 * time.Second

// DefaultBaseURL is the public cloud endpoint used when none is configured.
const DefaultBaseURL = "https://api.ui.com"

// envelopeKeys are tried in order when digging an array out of a response
// body; the per-resource key is spliced in second (after "data").
var envelopeKeys = []string{"items", "results", "entries"}

// Client talks to the cloud fleet API with a static key. It is stateless
// apart from configuration and safe for concurrent use.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a cloud fleet client.
func NewClient(cfg models.CloudConfig, logger *zap.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: base,
		logger:  logger,
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}
}

// get performs one GET and classifies failures into the source error
// taxonomy. Only 2xx responses return a body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, models.NewSourceError(models.ErrCodeConnection,
			fmt.Sprintf("cloud API %s unreachable", c.baseURL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read cloud response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, models.NewAuthError(
			"cloud API rejected the key",
			"generate a new API key in the cloud console and update the cloud settings",
		)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &models.SourceError{
			Code:       models.ErrCodeRateLimit,
			Message:    "cloud API rate limit exceeded",
			StatusCode: resp.StatusCode,
		}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &models.SourceError{
			Code:       models.ErrCodeNotFound,
			Message:    fmt.Sprintf("cloud API path %s not found", path),
			StatusCode: resp.StatusCode,
		}
	default:
		return nil, &models.SourceError{
			Code:       models.ErrCodeUpstream,
			Message:    fmt.Sprintf("cloud API returned status %d for %s", resp.StatusCode, path),
			StatusCode: resp.StatusCode,
		}
	}
}

// fetchFirst walks the candidate paths and stops at the first HTTP success,
// extracting an array via the candidate envelope keys. The error returned is
// the last failure when no path succeeded; a successful-but-empty extraction
// is not an error (callers with per-site fallbacks handle that case).
func (c *Client) fetchFirst(ctx context.Context, resourceKey string, paths []string) ([]map[string]any, error) {
	var lastErr error
	for _, path := range paths {
		body, err := c.get(ctx, path)
		if err != nil {
			// Auth failures are account-wide; walking more paths cannot help.
			if models.IsAuthError(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		rows := ExtractArray(body, resourceKey)
		c.logger.Debug("cloud fetch succeeded",
			zap.String("resource", resourceKey),
			zap.String("path", path),
			zap.Int("rows", len(rows)),
		)
		return rows, nil
	}

	if lastErr == nil {
		lastErr = &models.SourceError{
			Code:    models.ErrCodeUpstream,
			Message: fmt.Sprintf("no candidate path configured for %s", resourceKey),
		}
	}
	return nil, lastErr
}

// ExtractArray digs an object slice out of a response body using the
// ordered candidate envelope keys: "data", the resource's own key, then the
// generic list keys. A bare top-level array qualifies directly. Anything
// else yields an empty slice.
func ExtractArray(body []byte, resourceKey string) []map[string]any {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return []map[string]any{}
	}

	if arr, ok := parsed.([]any); ok {
		return toObjects(arr)
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return []map[string]any{}
	}

	candidates := append([]string{"data", resourceKey}, envelopeKeys...)
	for _, key := range candidates {
		if key == "" {
			continue
		}
		if arr, ok := obj[key].([]any); ok {
			return toObjects(arr)
		}
	}
	return []map[string]any{}
}

func toObjects(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
