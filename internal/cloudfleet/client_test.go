package cloudfleet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/HerbHall/netsage/pkg/models"
)

func testCloudClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(models.CloudConfig{
		Enabled: true,
		APIKey:  "cloud-key",
		BaseURL: baseURL,
	}, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func TestExtractArray(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		resourceKey string
		want        int
	}{
		{"data envelope", `{"data":[{"a":1},{"b":2}]}`, "sites", 2},
		{"resource key envelope", `{"sites":[{"a":1}]}`, "sites", 1},
		{"items envelope", `{"items":[{"a":1},{"b":2},{"c":3}]}`, "sites", 3},
		{"results envelope", `{"results":[{"a":1}]}`, "devices", 1},
		{"entries envelope", `{"entries":[{"a":1}]}`, "devices", 1},
		{"bare array", `[{"a":1},{"b":2}]`, "sites", 2},
		{"data wins over resource key", `{"data":[{"a":1}],"sites":[{"b":1},{"b":2}]}`, "sites", 1},
		{"no recognized key", `{"payload":[{"a":1}]}`, "sites", 0},
		{"scalar members skipped", `{"data":[{"a":1},"junk",7]}`, "sites", 1},
		{"invalid json", `{`, "sites", 0},
		{"scalar body", `42`, "sites", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractArray([]byte(tt.body), tt.resourceKey)
			if got == nil {
				t.Fatal("ExtractArray returned nil, want non-nil slice")
			}
			if len(got) != tt.want {
				t.Errorf("ExtractArray(%s) = %d elements, want %d", tt.body, len(got), tt.want)
			}
		})
	}
}

// TestGetSitesWalksCandidatePaths verifies that the candidate path list is
// walked in order and the first HTTP success wins, even when it is the last
// candidate and uses a non-default envelope key.
func TestGetSitesWalksCandidatePaths(t *testing.T) {
	var visited []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		visited = append(visited, r.URL.Path)
		if r.URL.Path == "/sites" {
			writeJSON(w, map[string]any{"sites": []any{
				map[string]any{"id": "site-1", "name": "HQ"},
				map[string]any{"id": "site-2", "name": "Branch"},
			}})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := testCloudClient(t, srv.URL)
	sites, err := c.GetSites(context.Background())
	if err != nil {
		t.Fatalf("GetSites: %v", err)
	}
	if len(sites) != 2 || sites[0]["id"] != "site-1" {
		t.Errorf("unexpected sites: %v", sites)
	}
	if len(visited) != len(sitePaths) {
		t.Errorf("visited %d paths %v, want all %d candidates", len(visited), visited, len(sitePaths))
	}
}

func TestGetSitesAuthErrorStopsWalk(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testCloudClient(t, srv.URL)
	_, err := c.GetSites(context.Background())
	if !models.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if hits != 1 {
		t.Errorf("server hit %d times, want 1 (auth failure is account-wide)", hits)
	}

	var se *models.SourceError
	if !errors.As(err, &se) || se.Hint == "" {
		t.Error("auth error should carry a remediation hint")
	}
}

func TestGetRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testCloudClient(t, srv.URL)
	_, err := c.GetSites(context.Background())
	if !models.IsRateLimited(err) {
		t.Fatalf("expected rate-limit error, got %v", err)
	}
}

func TestGetSendsAPIKey(t *testing.T) {
	var sawKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawKey = r.Header.Get("X-API-Key")
		writeJSON(w, map[string]any{"data": []any{}})
	}))
	defer srv.Close()

	c := testCloudClient(t, srv.URL)
	if _, err := c.GetSites(context.Background()); err != nil {
		t.Fatalf("GetSites: %v", err)
	}
	if sawKey != "cloud-key" {
		t.Errorf("server saw key %q, want %q", sawKey, "cloud-key")
	}
}

func TestGetDevicesPerSiteFallbackDedup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ea/sites":
			writeJSON(w, map[string]any{"data": []any{
				map[string]any{"id": "s1"},
				map[string]any{"id": "s2"},
			}})
		case "/ea/devices":
			// Fleet-wide listing exists but is empty on this tier.
			writeJSON(w, map[string]any{"data": []any{}})
		case "/ea/sites/s1/devices":
			writeJSON(w, map[string]any{"data": []any{
				map[string]any{"mac": "AA:01", "name": "gw-1", "status": "online"},
				map[string]any{"mac": "aa:02", "name": "sw-1", "status": "online"},
			}})
		case "/ea/sites/s2/devices":
			// aa:01 appears in both sites; the duplicate must be dropped.
			writeJSON(w, map[string]any{"data": []any{
				map[string]any{"mac": "aa:01", "name": "gw-1", "status": "online"},
				map[string]any{"mac": "aa:03", "name": "ap-1", "status": "offline"},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := testCloudClient(t, srv.URL)
	devices, err := c.GetDevices(context.Background())
	if err != nil {
		t.Fatalf("GetDevices: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("got %d devices, want 3 (cross-site duplicate deduped): %v", len(devices), devices)
	}
}

func TestMarkStatuslessOnline(t *testing.T) {
	t.Run("all statusless flips online", func(t *testing.T) {
		rows := []map[string]any{
			{"mac": "aa:01", "name": "gw"},
			{"mac": "aa:02", "name": "sw"},
		}
		for _, row := range markStatuslessOnline(rows) {
			if row["status"] != "online" {
				t.Errorf("row %v not stamped online", row)
			}
		}
	})

	t.Run("one status field blocks the flip", func(t *testing.T) {
		rows := []map[string]any{
			{"mac": "aa:01", "state": "offline"},
			{"mac": "aa:02"},
		}
		got := markStatuslessOnline(rows)
		if _, ok := got[1]["status"]; ok {
			t.Error("statusless row was stamped even though a sibling reports status")
		}
	})
}

func TestCountOnlineDevices(t *testing.T) {
	rows := []map[string]any{
		{"status": "online"},
		{"status": "CONNECTED"},
		{"state": float64(1)},
		{"online": true},
		{"status": "offline"},
		{"online": false},
	}
	online, total := CountOnlineDevices(rows)
	if online != 4 || total != 6 {
		t.Errorf("CountOnlineDevices = %d/%d, want 4/6", online, total)
	}
}

func TestFetchEverythingIsolatesResourceFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ea/sites":
			writeJSON(w, map[string]any{"data": []any{map[string]any{"id": "s1"}}})
		case "/ea/devices":
			writeJSON(w, map[string]any{"data": []any{
				map[string]any{"mac": "aa:01", "status": "online"},
			}})
		case "/ea/account":
			writeJSON(w, map[string]any{"data": map[string]any{"email": "ops@example.com"}})
		default:
			// Every other resource is broken on this account.
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := testCloudClient(t, srv.URL)
	data, err := c.FetchEverything(context.Background())
	if err != nil {
		t.Fatalf("FetchEverything: %v", err)
	}
	if len(data.Sites) != 1 || len(data.Devices) != 1 {
		t.Errorf("sites=%d devices=%d, want 1 and 1", len(data.Sites), len(data.Devices))
	}
	if data.Account["email"] != "ops@example.com" {
		t.Errorf("unexpected account: %v", data.Account)
	}
	if len(data.Alerts) != 0 || len(data.WLANs) != 0 {
		t.Error("failed resources should degrade to empty sections")
	}
}

func TestFetchEverythingAuthFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testCloudClient(t, srv.URL)
	if _, err := c.FetchEverything(context.Background()); !models.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}
