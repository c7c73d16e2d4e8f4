package unifi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func lookupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/s/default/stat/sta":
			writeData(w, []map[string]any{
				{"mac": "0e:01", "hostname": "laptop", "ip": "10.0.0.5", "is_wired": true, "sw_mac": "aa:01", "sw_port": float64(4)},
				{"mac": "0e:02", "hostname": "printer", "fixed_ip": "10.0.0.60", "is_wired": true, "sw_mac": "aa:01", "sw_port": float64(9)},
				{"mac": "0e:03", "hostname": "phone", "is_wired": false, "ap_mac": "aa:02",
					"network": map[string]any{"ip": "10.0.30.7"}},
			})
		case "/api/s/default/stat/device":
			writeData(w, []map[string]any{
				{"mac": "aa:01", "name": "office-switch", "type": "usw", "state": float64(1)},
				{"mac": "aa:02", "name": "ceiling-ap", "type": "uap", "state": float64(1)},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestLookupClientByIP(t *testing.T) {
	srv := lookupTestServer(t)
	defer srv.Close()
	c := testClient(t, srv.URL)

	tests := []struct {
		name       string
		ip         string
		wantHost   string
		wantUplink string
		wantPort   int
	}{
		{"plain ip match", "10.0.0.5", "laptop", "office-switch", 4},
		{"fixed ip match", "10.0.0.60", "printer", "office-switch", 9},
		{"nested network ip match", "10.0.30.7", "phone", "ceiling-ap", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := c.LookupClientByIP(context.Background(), tt.ip)
			if err != nil {
				t.Fatalf("LookupClientByIP(%s): %v", tt.ip, err)
			}
			if loc == nil {
				t.Fatalf("LookupClientByIP(%s) = nil, want a match", tt.ip)
			}
			if loc.Client.Hostname != tt.wantHost {
				t.Errorf("hostname = %q, want %q", loc.Client.Hostname, tt.wantHost)
			}
			if loc.Uplink != tt.wantUplink {
				t.Errorf("uplink = %q, want %q", loc.Uplink, tt.wantUplink)
			}
			if loc.Port != tt.wantPort {
				t.Errorf("port = %d, want %d", loc.Port, tt.wantPort)
			}
			if loc.Controller != "Test Controller" {
				t.Errorf("controller = %q, want configured name", loc.Controller)
			}
		})
	}
}

func TestLookupClientByIPNoMatch(t *testing.T) {
	srv := lookupTestServer(t)
	defer srv.Close()
	c := testClient(t, srv.URL)

	loc, err := c.LookupClientByIP(context.Background(), "192.168.99.99")
	if err != nil {
		t.Fatalf("LookupClientByIP: %v", err)
	}
	if loc != nil {
		t.Errorf("expected no match, got %+v", loc)
	}
}

func TestLookupClientByIPUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := testClient(t, srv.URL)

	if _, err := c.LookupClientByIP(context.Background(), "10.0.0.5"); err == nil {
		t.Error("lookup against a failing controller should surface an error")
	}
}
