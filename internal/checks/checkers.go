package checks

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Checker runs one kind of health check against a target.
type Checker interface {
	// Check runs the check and returns the outcome. The returned result is
	// always non-nil; the error carries the failure cause for logging.
	Check(ctx context.Context, target string) (*CheckResult, error)
}

// Compile-time interface guards.
var (
	_ Checker = (*PingChecker)(nil)
	_ Checker = (*TCPChecker)(nil)
	_ Checker = (*HTTPChecker)(nil)
)

// PingChecker tests ICMP reachability and measures round-trip time.
type PingChecker struct {
	timeout time.Duration
	count   int
}

// NewPingChecker creates a ping checker sending count packets per run.
func NewPingChecker(timeout time.Duration, count int) *PingChecker {
	if count < 1 {
		count = 3
	}
	return &PingChecker{timeout: timeout, count: count}
}

// Check pings the target host. Success means at least one reply came back.
func (c *PingChecker) Check(ctx context.Context, target string) (*CheckResult, error) {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return &CheckResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("invalid target %q: %v", target, err),
			CheckedAt:    time.Now().UTC(),
		}, fmt.Errorf("invalid target %q: %w", target, err)
	}

	pinger.Count = c.count
	pinger.Timeout = c.timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan error, 1)
	go func() { done <- pinger.Run() }()

	select {
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return &CheckResult{
			Success:      false,
			ErrorMessage: ctx.Err().Error(),
			CheckedAt:    time.Now().UTC(),
		}, ctx.Err()
	case err := <-done:
		if err != nil {
			return &CheckResult{
				Success:      false,
				ErrorMessage: err.Error(),
				CheckedAt:    time.Now().UTC(),
			}, fmt.Errorf("ping %s: %w", target, err)
		}
	}

	stats := pinger.Statistics()
	result := &CheckResult{
		LatencyMs: float64(stats.AvgRtt) / float64(time.Millisecond),
		CheckedAt: time.Now().UTC(),
	}
	if stats.PacketsRecv == 0 {
		result.Success = false
		result.ErrorMessage = fmt.Sprintf("no reply from %s (%d packets sent)", target, stats.PacketsSent)
		return result, fmt.Errorf("ping %s: no reply", target)
	}
	result.Success = true
	return result, nil
}

// TCPChecker tests TCP connectivity to host:port targets.
type TCPChecker struct {
	timeout time.Duration
}

// NewTCPChecker creates a TCP checker with the given connection timeout.
func NewTCPChecker(timeout time.Duration) *TCPChecker {
	return &TCPChecker{timeout: timeout}
}

// Check connects to the target (host:port) and measures connection time.
func (c *TCPChecker) Check(ctx context.Context, target string) (*CheckResult, error) {
	if _, _, err := net.SplitHostPort(target); err != nil {
		return &CheckResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("invalid target %q: %v", target, err),
			CheckedAt:    time.Now().UTC(),
		}, fmt.Errorf("invalid target %q: %w", target, err)
	}

	start := time.Now()
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	elapsed := time.Since(start)

	if err != nil {
		return &CheckResult{
			Success:      false,
			LatencyMs:    float64(elapsed) / float64(time.Millisecond),
			ErrorMessage: err.Error(),
			CheckedAt:    time.Now().UTC(),
		}, fmt.Errorf("tcp connect %s: %w", target, err)
	}
	conn.Close()

	return &CheckResult{
		Success:   true,
		LatencyMs: float64(elapsed) / float64(time.Millisecond),
		CheckedAt: time.Now().UTC(),
	}, nil
}

// HTTPChecker tests HTTP/HTTPS endpoint reachability by sending GET requests.
// Self-signed TLS certificates are accepted because monitored gear commonly
// serves them.
type HTTPChecker struct {
	client *http.Client
}

// NewHTTPChecker creates an HTTP checker with the given timeout.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: true}, //nolint:gosec // G402: monitoring must work with self-signed certs
				DisableKeepAlives: true,
			},
		},
	}
}

// Check sends a GET request to the target URL and checks for a 2xx response.
func (c *HTTPChecker) Check(ctx context.Context, target string) (*CheckResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return &CheckResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("invalid URL %q: %v", target, err),
			CheckedAt:    time.Now().UTC(),
		}, fmt.Errorf("invalid URL %q: %w", target, err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		return &CheckResult{
			Success:      false,
			LatencyMs:    float64(elapsed) / float64(time.Millisecond),
			ErrorMessage: err.Error(),
			CheckedAt:    time.Now().UTC(),
		}, fmt.Errorf("http get %s: %w", target, err)
	}
	resp.Body.Close()

	result := &CheckResult{
		LatencyMs: float64(elapsed) / float64(time.Millisecond),
		CheckedAt: time.Now().UTC(),
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Success = true
		return result, nil
	}
	result.ErrorMessage = fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return result, fmt.Errorf("http %s: status %d", target, resp.StatusCode)
}
