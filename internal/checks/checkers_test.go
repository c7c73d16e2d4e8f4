package checks

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// startTCPListener accepts and immediately closes connections.
func startTCPListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln.Addr().String()
}

func TestTCPCheckerSuccess(t *testing.T) {
	addr := startTCPListener(t)
	c := NewTCPChecker(2 * time.Second)

	result, err := c.Check(context.Background(), addr)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.Success {
		t.Errorf("Success = false: %s", result.ErrorMessage)
	}
	if result.CheckedAt.IsZero() {
		t.Error("CheckedAt not set")
	}
}

func TestTCPCheckerRefused(t *testing.T) {
	// Grab a free port, then close it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewTCPChecker(2 * time.Second)
	result, err := c.Check(context.Background(), addr)
	if err == nil {
		t.Error("expected error for refused connection")
	}
	if result == nil || result.Success {
		t.Errorf("result = %+v", result)
	}
	if result.ErrorMessage == "" {
		t.Error("ErrorMessage not set")
	}
}

func TestTCPCheckerInvalidTarget(t *testing.T) {
	c := NewTCPChecker(time.Second)
	result, err := c.Check(context.Background(), "no-port-here")
	if err == nil {
		t.Error("expected error for target without port")
	}
	if result == nil || result.Success {
		t.Errorf("result = %+v", result)
	}
}

func TestHTTPCheckerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPChecker(2 * time.Second)
	result, err := c.Check(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.Success {
		t.Errorf("Success = false: %s", result.ErrorMessage)
	}
	if result.LatencyMs <= 0 {
		t.Errorf("LatencyMs = %v, want > 0", result.LatencyMs)
	}
}

func TestHTTPCheckerNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPChecker(2 * time.Second)
	result, err := c.Check(context.Background(), srv.URL)
	if err == nil {
		t.Error("expected error for 503 response")
	}
	if result == nil || result.Success {
		t.Errorf("result = %+v", result)
	}
}
