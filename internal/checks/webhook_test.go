package checks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookNotifierSignsPayload(t *testing.T) {
	const secret = "webhook-secret"

	var gotSignature, gotAgent string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Signature")
		gotAgent = r.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{
		URL:     srv.URL,
		Secret:  secret,
		Headers: map[string]string{"X-Team": "netops"},
	})

	alert := &Alert{ID: "a1", CheckID: "c1", Severity: "warning", Message: "down", TriggeredAt: time.Now().UTC()}
	if err := n.Notify(context.Background(), alert, "triggered"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := hex.EncodeToString(mac.Sum(nil))
	if gotSignature != want {
		t.Errorf("X-Signature = %q, want %q", gotSignature, want)
	}
	if gotAgent != "NetSage-Webhook/0.3" {
		t.Errorf("User-Agent = %q", gotAgent)
	}

	var payload webhookPayload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.EventType != "triggered" || payload.Alert == nil || payload.Alert.ID != "a1" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestWebhookNotifierOmitsSignatureWithoutSecret(t *testing.T) {
	var signed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, signed = r.Header["X-Signature"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL})
	if err := n.Notify(context.Background(), &Alert{ID: "a1"}, "resolved"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if signed {
		t.Error("X-Signature set without a secret")
	}
}

func TestWebhookNotifierReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL})
	if err := n.Notify(context.Background(), &Alert{ID: "a1"}, "triggered"); err == nil {
		t.Error("expected error for 502 response")
	}
}
