// Package diag runs network diagnostics (ping, traceroute, TCP port probe)
// on behalf of chat requests. Hosts cross a strict sanitization boundary
// before any probe or subprocess sees them; results never propagate as
// errors, they always come back as a Result with an explicit error field.
package diag

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"

	"github.com/HerbHall/netsage/pkg/models"
)

const (
	pingTimeout       = 15 * time.Second
	tracerouteTimeout = 30 * time.Second
	portProbeTimeout  = 5 * time.Second

	minPingCount = 1
	maxPingCount = 5
	minHops      = 1
	maxHops      = 20
)

// hostPattern is the security boundary for anything that reaches a probe or
// a subprocess argument. Shell metacharacters, whitespace, and over-length
// strings all fail it.
var hostPattern = regexp.MustCompile(`^[A-Za-z0-9.\-_:\[\]]{1,253}$`)

// Result is the outcome of one diagnostic command. Output holds combined
// stdout and stderr style text; Error is set when the command could not
// complete, alongside whatever partial output exists.
type Result struct {
	Command string `json:"command"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Runner executes diagnostics. Stateless; safe for concurrent use.
type Runner struct {
	logger *zap.Logger
}

// NewRunner creates a diagnostics runner.
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// ValidateHost rejects anything that may not be passed to a probe.
func ValidateHost(host string) error {
	if !hostPattern.MatchString(host) {
		return &models.SourceError{
			Code:    models.ErrCodeValidation,
			Message: "host contains invalid characters or is too long",
		}
	}
	return nil
}

// Ping sends ICMP echo requests and reports round-trip statistics. Count is
// clamped to [1,5]; the whole run is bounded by a 15s wall clock.
func (r *Runner) Ping(ctx context.Context, host string, count int) Result {
	if err := ValidateHost(host); err != nil {
		return Result{Command: "ping " + host, Error: err.Error()}
	}
	count = clamp(count, minPingCount, maxPingCount)
	cmd := fmt.Sprintf("ping -c %d %s", count, host)

	pinger, err := probing.NewPinger(host)
	if err != nil {
		return Result{Command: cmd, Error: fmt.Sprintf("cannot resolve %s: %v", host, err)}
	}
	pinger.Count = count
	pinger.Timeout = pingTimeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan error, 1)
	go func() { done <- pinger.Run() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return Result{Command: cmd, Error: "ping canceled: " + ctx.Err().Error()}
	}

	stats := pinger.Statistics()
	out := fmt.Sprintf(
		"PING %s (%s)\n%d packets transmitted, %d received, %.0f%% packet loss\n",
		host, stats.IPAddr, stats.PacketsSent, stats.PacketsRecv, stats.PacketLoss,
	)
	if stats.PacketsRecv > 0 {
		out += fmt.Sprintf("rtt min/avg/max = %v/%v/%v\n", stats.MinRtt, stats.AvgRtt, stats.MaxRtt)
	}

	res := Result{Command: cmd, Output: out}
	if err != nil {
		res.Error = err.Error()
	} else if stats.PacketsRecv == 0 {
		res.Error = fmt.Sprintf("no reply from %s", host)
	}
	r.logger.Debug("ping finished", zap.String("host", host), zap.String("error", res.Error))
	return res
}

// Traceroute shells out to the platform traceroute binary. Hop limit is
// clamped to [1,20]; the subprocess is killed after 30s.
func (r *Runner) Traceroute(ctx context.Context, host string, maxHopCount int) Result {
	if err := ValidateHost(host); err != nil {
		return Result{Command: "traceroute " + host, Error: err.Error()}
	}
	maxHopCount = clamp(maxHopCount, minHops, maxHops)

	ctx, cancel := context.WithTimeout(ctx, tracerouteTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "tracert", "-h", strconv.Itoa(maxHopCount), host)
	} else {
		cmd = exec.CommandContext(ctx, "traceroute", "-m", strconv.Itoa(maxHopCount), host)
	}

	out, err := cmd.CombinedOutput()
	res := Result{
		Command: fmt.Sprintf("traceroute -m %d %s", maxHopCount, host),
		Output:  string(out),
	}
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res.Error = "traceroute timed out after 30s"
	case err != nil:
		res.Error = err.Error()
	}
	r.logger.Debug("traceroute finished", zap.String("host", host), zap.String("error", res.Error))
	return res
}

// TestPort attempts a raw TCP connect. "open" is reported only on a
// completed connection; any dial error reports closed with the reason.
func (r *Runner) TestPort(ctx context.Context, host string, port int) Result {
	cmd := fmt.Sprintf("tcp-connect %s:%d", host, port)
	if err := ValidateHost(host); err != nil {
		return Result{Command: cmd, Error: err.Error()}
	}
	if port < 1 || port > 65535 {
		return Result{Command: cmd, Error: fmt.Sprintf("port %d out of range [1,65535]", port)}
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: portProbeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{
			Command: cmd,
			Output:  fmt.Sprintf("Port %d on %s is closed or unreachable.", port, host),
			Error:   err.Error(),
		}
	}
	conn.Close()
	return Result{Command: cmd, Output: fmt.Sprintf("Port %d on %s is open.", port, host)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
