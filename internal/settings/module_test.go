package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/netsage/internal/config"
	"github.com/HerbHall/netsage/internal/event"
	"github.com/HerbHall/netsage/internal/store"
	"github.com/HerbHall/netsage/pkg/models"
	"github.com/HerbHall/netsage/pkg/plugin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newTestModule(t *testing.T, v *viper.Viper) (*Module, *event.Bus) {
	t.Helper()

	db, err := store.New(filepath.Join(t.TempDir(), "netsage.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := event.NewBus(zap.NewNop())

	deps := plugin.Dependencies{
		Logger: zap.NewNop(),
		Store:  db,
		Bus:    bus,
	}
	if v != nil {
		deps.Config = config.New(v)
	}

	m := New()
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return m, bus
}

// newTestMux mounts the module's routes the way the server does.
func newTestMux(m *Module) *http.ServeMux {
	mux := http.NewServeMux()
	for _, rt := range m.Routes() {
		mux.HandleFunc(fmt.Sprintf("%s /api/v1/settings%s", rt.Method, rt.Path), rt.Handler)
	}
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestControllerCRUD(t *testing.T) {
	m, _ := newTestModule(t, nil)
	mux := newTestMux(m)

	// Empty list to start.
	rec := doJSON(t, mux, "GET", "/api/v1/settings/controllers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET controllers = %d, want 200", rec.Code)
	}
	var list []ControllerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	// Create.
	rec = doJSON(t, mux, "POST", "/api/v1/settings/controllers", ControllerRequest{
		ID:      "ctl-1",
		Name:    "Head Office",
		BaseURL: "https://10.0.0.1/",
		APIKey:  "secret-key",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST controller = %d, body %s", rec.Code, rec.Body.String())
	}
	var created ControllerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.BaseURL != "https://10.0.0.1" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", created.BaseURL)
	}
	if !created.Enabled || created.Site != "default" || !created.KeySet {
		t.Errorf("defaults not applied: %+v", created)
	}
	if strings.Contains(rec.Body.String(), "secret-key") {
		t.Error("response leaked the api key")
	}

	// Duplicate ID conflicts.
	rec = doJSON(t, mux, "POST", "/api/v1/settings/controllers", ControllerRequest{
		ID: "ctl-1", BaseURL: "https://10.0.0.2", APIKey: "x",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate POST = %d, want 409", rec.Code)
	}

	// Update without api_key keeps the stored credential.
	rec = doJSON(t, mux, "PUT", "/api/v1/settings/controllers/ctl-1", ControllerRequest{
		Name:    "Renamed",
		BaseURL: "https://10.0.0.1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT controller = %d, body %s", rec.Code, rec.Body.String())
	}
	got, err := m.repo.GetController(context.Background(), "ctl-1")
	if err != nil {
		t.Fatalf("GetController: %v", err)
	}
	if got.APIKey != "secret-key" {
		t.Errorf("APIKey = %q, want stored credential kept", got.APIKey)
	}
	if got.Name != "Renamed" {
		t.Errorf("Name = %q, want %q", got.Name, "Renamed")
	}

	// Delete.
	rec = doJSON(t, mux, "DELETE", "/api/v1/settings/controllers/ctl-1", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE = %d, want 204", rec.Code)
	}
	rec = doJSON(t, mux, "DELETE", "/api/v1/settings/controllers/ctl-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", rec.Code)
	}
}

func TestControllerValidation(t *testing.T) {
	m, _ := newTestModule(t, nil)
	mux := newTestMux(m)

	cases := []struct {
		name string
		req  ControllerRequest
	}{
		{"missing id", ControllerRequest{BaseURL: "https://10.0.0.1", APIKey: "k"}},
		{"missing base_url", ControllerRequest{ID: "a", APIKey: "k"}},
		{"relative base_url", ControllerRequest{ID: "a", BaseURL: "10.0.0.1", APIKey: "k"}},
		{"missing api_key", ControllerRequest{ID: "a", BaseURL: "https://10.0.0.1"}},
		{"id with slash", ControllerRequest{ID: "a/b", BaseURL: "https://10.0.0.1", APIKey: "k"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, mux, "POST", "/api/v1/settings/controllers", tc.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("POST = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCloudConfigRoundTrip(t *testing.T) {
	m, _ := newTestModule(t, nil)
	mux := newTestMux(m)

	// Zero value when nothing stored.
	rec := doJSON(t, mux, "GET", "/api/v1/settings/cloud", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET cloud = %d", rec.Code)
	}
	var cloud CloudResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &cloud); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cloud.Enabled || cloud.KeySet {
		t.Errorf("expected zero-value cloud config, got %+v", cloud)
	}

	// Enabling without a key is rejected.
	rec = doJSON(t, mux, "PUT", "/api/v1/settings/cloud", CloudRequest{Enabled: true})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("PUT without key = %d, want 400", rec.Code)
	}

	// Store and read back, key redacted.
	rec = doJSON(t, mux, "PUT", "/api/v1/settings/cloud", CloudRequest{
		Enabled: true, APIKey: "cloud-secret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT cloud = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "cloud-secret") {
		t.Error("response leaked the api key")
	}

	cfg, err := m.Cloud(context.Background())
	if err != nil {
		t.Fatalf("Cloud(): %v", err)
	}
	if !cfg.Enabled || cfg.APIKey != "cloud-secret" {
		t.Errorf("stored cloud config = %+v", cfg)
	}

	// Update with empty key keeps the stored one.
	rec = doJSON(t, mux, "PUT", "/api/v1/settings/cloud", CloudRequest{Enabled: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("second PUT = %d", rec.Code)
	}
	cfg, _ = m.Cloud(context.Background())
	if cfg.APIKey != "cloud-secret" {
		t.Errorf("APIKey = %q, want stored credential kept", cfg.APIKey)
	}
}

func TestSeedFromConfig(t *testing.T) {
	v := viper.New()
	v.Set("controllers", []map[string]any{
		{"id": "ctl-1", "name": "Office", "enabled": true, "base_url": "https://10.0.0.1", "api_key": "k1"},
		{"id": "ctl-2", "enabled": false, "base_url": "https://10.0.0.2", "api_key": "k2", "site": "branch"},
	})
	v.Set("cloud.enabled", true)
	v.Set("cloud.api_key", "ck")

	m, _ := newTestModule(t, v)

	controllers, err := m.Controllers(context.Background())
	if err != nil {
		t.Fatalf("Controllers(): %v", err)
	}
	if len(controllers) != 2 {
		t.Fatalf("seeded %d controllers, want 2", len(controllers))
	}
	if controllers[0].ID != "ctl-1" || controllers[1].ID != "ctl-2" {
		t.Errorf("seed order = %s, %s", controllers[0].ID, controllers[1].ID)
	}
	if controllers[1].Site != "branch" {
		t.Errorf("Site = %q, want %q", controllers[1].Site, "branch")
	}

	cloud, err := m.Cloud(context.Background())
	if err != nil {
		t.Fatalf("Cloud(): %v", err)
	}
	if !cloud.Enabled || cloud.APIKey != "ck" {
		t.Errorf("seeded cloud = %+v", cloud)
	}
}

func TestSeedSkippedWhenControllersExist(t *testing.T) {
	m, _ := newTestModule(t, nil)
	if err := m.repo.UpsertController(context.Background(), models.ControllerConfig{
		ID: "existing", BaseURL: "https://10.0.0.9", APIKey: "k", Enabled: true, Site: "default",
	}); err != nil {
		t.Fatalf("UpsertController: %v", err)
	}

	v := viper.New()
	v.Set("controllers", []map[string]any{
		{"id": "seeded", "base_url": "https://10.0.0.1", "api_key": "k"},
	})
	if err := m.seed(context.Background(), config.New(v)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	controllers, _ := m.Controllers(context.Background())
	if len(controllers) != 1 || controllers[0].ID != "existing" {
		t.Errorf("seed ran over existing data: %+v", controllers)
	}
}

func TestMutationPublishesChange(t *testing.T) {
	m, bus := newTestModule(t, nil)
	mux := newTestMux(m)

	events := make(chan plugin.Event, 1)
	bus.Subscribe(TopicChanged, func(_ context.Context, e plugin.Event) {
		events <- e
	})

	rec := doJSON(t, mux, "POST", "/api/v1/settings/controllers", ControllerRequest{
		ID: "ctl-1", BaseURL: "https://10.0.0.1", APIKey: "k",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST = %d", rec.Code)
	}

	select {
	case e := <-events:
		payload, ok := e.Payload.(map[string]string)
		if !ok {
			t.Fatalf("payload type = %T", e.Payload)
		}
		if payload["what"] != "controller" || payload["id"] != "ctl-1" {
			t.Errorf("payload = %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no settings.changed event published")
	}
}
