package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/netsage/pkg/plugin"
	"go.uber.org/zap"
)

// fakeModule is a scriptable plugin. The lifecycle fields let one fixture
// cover failure, panic, and ordering scenarios.
type fakeModule struct {
	info     plugin.PluginInfo
	initErr  error
	startErr error
	stopErr  error
	stopWait time.Duration
	panicIn  string // "init", "start" or "stop"

	events *[]string // shared lifecycle log, entries like "stop:llm"
}

func module(name string, deps ...string) *fakeModule {
	return &fakeModule{
		info: plugin.PluginInfo{
			Name:         name,
			Version:      "0.3.0",
			Dependencies: deps,
			APIVersion:   plugin.APIVersionCurrent,
		},
	}
}

func (m *fakeModule) record(phase string) {
	if m.events != nil {
		*m.events = append(*m.events, phase+":"+m.info.Name)
	}
}

func (m *fakeModule) Info() plugin.PluginInfo { return m.info }

func (m *fakeModule) Init(_ context.Context, _ plugin.Dependencies) error {
	if m.panicIn == "init" {
		panic("boom in init")
	}
	m.record("init")
	return m.initErr
}

func (m *fakeModule) Start(_ context.Context) error {
	if m.panicIn == "start" {
		panic("boom in start")
	}
	m.record("start")
	return m.startErr
}

func (m *fakeModule) Stop(ctx context.Context) error {
	if m.panicIn == "stop" {
		panic("boom in stop")
	}
	if m.stopWait > 0 {
		select {
		case <-time.After(m.stopWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.record("stop")
	return m.stopErr
}

// routedModule additionally serves HTTP routes.
type routedModule struct {
	fakeModule
	routes []plugin.Route
}

func (m *routedModule) Routes() []plugin.Route { return m.routes }

// subscribingModule declares bus subscriptions.
type subscribingModule struct {
	fakeModule
	subs []plugin.Subscription
}

func (m *subscribingModule) Subscriptions() []plugin.Subscription { return m.subs }

// recordingBus captures Subscribe calls.
type recordingBus struct {
	topics []string
}

func (b *recordingBus) Publish(context.Context, plugin.Event) error { return nil }
func (b *recordingBus) PublishAsync(context.Context, plugin.Event)  {}
func (b *recordingBus) Subscribe(topic string, _ plugin.EventHandler) func() {
	b.topics = append(b.topics, topic)
	return func() {}
}
func (b *recordingBus) SubscribeAll(plugin.EventHandler) func() { return func() {} }

func nopDeps(string) plugin.Dependencies {
	return plugin.Dependencies{Logger: zap.NewNop()}
}

// bringUp registers the modules and walks Validate/InitAll/StartAll,
// failing the test on any error.
func bringUp(t *testing.T, mods ...plugin.Plugin) *Registry {
	t.Helper()
	reg := New(zap.NewNop())
	for _, m := range mods {
		if err := reg.Register(m); err != nil {
			t.Fatalf("Register(%s): %v", m.Info().Name, err)
		}
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ctx := context.Background()
	if err := reg.InitAll(ctx, nopDeps); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if err := reg.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	return reg
}

func TestRegisterRejectsDuplicatesAndEmptyNames(t *testing.T) {
	reg := New(zap.NewNop())

	if err := reg.Register(module("settings")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(module("settings")); err == nil {
		t.Error("duplicate registration accepted")
	}
	if err := reg.Register(module("")); err == nil {
		t.Error("empty plugin name accepted")
	}
}

func TestValidateOrdersByDependency(t *testing.T) {
	// Registration order is adversarial: every plugin arrives before what
	// it depends on.
	assist := module("assist", "settings", "llm")
	llm := module("llm")
	settings := module("settings")
	reg := bringUp(t, assist, llm, settings)

	var names []string
	for _, p := range reg.All() {
		names = append(names, p.Info().Name)
	}
	idx := map[string]int{}
	for i, n := range names {
		idx[n] = i
	}
	if idx["settings"] > idx["assist"] || idx["llm"] > idx["assist"] {
		t.Errorf("start order %v does not respect dependencies", names)
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	reg := New(zap.NewNop())
	reg.Register(module("llm", "assist"))
	reg.Register(module("assist", "llm"))

	err := reg.Validate()
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("Validate = %v, want cycle error", err)
	}
}

func TestValidateMissingDependency(t *testing.T) {
	t.Run("required plugin fails startup", func(t *testing.T) {
		reg := New(zap.NewNop())
		core := module("settings", "storage")
		core.info.Required = true
		reg.Register(core)
		if err := reg.Validate(); err == nil {
			t.Fatal("Validate accepted required plugin with missing dependency")
		}
	})

	t.Run("optional plugin is disabled", func(t *testing.T) {
		reg := New(zap.NewNop())
		reg.Register(module("assist", "llm")) // llm never registered
		if err := reg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if !reg.IsDisabled("assist") {
			t.Error("assist still active despite missing dependency")
		}
	})
}

func TestValidateAPIVersionGate(t *testing.T) {
	for name, version := range map[string]int{"stale": 0, "future": plugin.APIVersionCurrent + 1} {
		t.Run(name, func(t *testing.T) {
			reg := New(zap.NewNop())
			m := module(name)
			m.info.APIVersion = version
			m.info.Required = true
			reg.Register(m)
			if err := reg.Validate(); err == nil {
				t.Errorf("Validate accepted required plugin at API v%d", version)
			}
		})
	}
}

func TestValidateCascadeDisable(t *testing.T) {
	// llm is rejected by the API gate; assist and checks depend on it,
	// directly and transitively.
	llm := module("llm")
	llm.info.APIVersion = 0
	assist := module("assist", "llm")
	checks := module("checks", "assist")
	settings := module("settings")

	reg := New(zap.NewNop())
	for _, m := range []*fakeModule{llm, assist, checks, settings} {
		reg.Register(m)
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	for _, name := range []string{"llm", "assist", "checks"} {
		if !reg.IsDisabled(name) {
			t.Errorf("%s still active", name)
		}
	}
	if reg.IsDisabled("settings") {
		t.Error("settings disabled without cause")
	}
	if got := len(reg.All()); got != 1 {
		t.Errorf("All() = %d plugins, want 1", got)
	}
}

func TestInitAllFailurePolicy(t *testing.T) {
	t.Run("required init error aborts", func(t *testing.T) {
		reg := New(zap.NewNop())
		m := module("settings")
		m.info.Required = true
		m.initErr = errors.New("schema migration failed")
		reg.Register(m)
		reg.Validate()
		if err := reg.InitAll(context.Background(), nopDeps); err == nil {
			t.Fatal("InitAll swallowed a required plugin's init error")
		}
	})

	t.Run("optional init error disables", func(t *testing.T) {
		reg := New(zap.NewNop())
		m := module("checks")
		m.initErr = errors.New("bad config")
		reg.Register(m)
		reg.Validate()
		if err := reg.InitAll(context.Background(), nopDeps); err != nil {
			t.Fatalf("InitAll: %v", err)
		}
		if !reg.IsDisabled("checks") {
			t.Error("checks still active after init failure")
		}
	})
}

func TestInitAllWiresSubscriptions(t *testing.T) {
	assist := &subscribingModule{
		fakeModule: *module("assist"),
		subs: []plugin.Subscription{
			{Topic: "settings.changed", Handler: func(context.Context, plugin.Event) {}},
			{Topic: "checks.alert.triggered", Handler: func(context.Context, plugin.Event) {}},
		},
	}

	reg := New(zap.NewNop())
	reg.Register(assist)
	reg.Validate()

	bus := &recordingBus{}
	err := reg.InitAll(context.Background(), func(string) plugin.Dependencies {
		return plugin.Dependencies{Logger: zap.NewNop(), Bus: bus}
	})
	if err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if len(bus.topics) != 2 || bus.topics[0] != "settings.changed" {
		t.Errorf("subscribed topics = %v", bus.topics)
	}
}

func TestAllRoutesSkipsRoutelessAndDisabled(t *testing.T) {
	web := &routedModule{
		fakeModule: *module("settings"),
		routes:     []plugin.Route{{Method: "GET", Path: "/controllers"}},
	}
	dark := &routedModule{
		fakeModule: *module("assist", "llm"), // disabled: llm missing
		routes:     []plugin.Route{{Method: "POST", Path: "/chat"}},
	}
	plain := module("checks")

	reg := New(zap.NewNop())
	for _, m := range []plugin.Plugin{web, dark, plain} {
		reg.Register(m)
	}
	reg.Validate()

	routes := reg.AllRoutes()
	if len(routes) != 1 {
		t.Fatalf("AllRoutes() = %v, want only settings", routes)
	}
	if _, ok := routes["settings"]; !ok {
		t.Error("settings routes missing")
	}
}

func TestResolveByRole(t *testing.T) {
	llm := module("llm")
	llm.info.Roles = []string{"llm-provider"}
	other := module("settings")

	reg := bringUp(t, llm, other)

	got := reg.ResolveByRole("llm-provider")
	if len(got) != 1 || got[0].Info().Name != "llm" {
		t.Errorf("ResolveByRole = %v", got)
	}
	if len(reg.ResolveByRole("no-such-role")) != 0 {
		t.Error("unknown role resolved to plugins")
	}
	if _, ok := reg.Resolve("llm"); !ok {
		t.Error("Resolve(llm) failed")
	}
}

func TestStopAllReverseOrderAndErrorIsolation(t *testing.T) {
	var events []string
	settings := module("settings")
	llm := module("llm", "settings")
	llm.stopErr = errors.New("provider hung up")
	assist := module("assist", "llm")
	for _, m := range []*fakeModule{settings, llm, assist} {
		m.events = &events
	}

	reg := bringUp(t, settings, llm, assist)
	events = events[:0]
	reg.StopAll(context.Background())

	want := []string{"stop:assist", "stop:llm", "stop:settings"}
	if len(events) != len(want) {
		t.Fatalf("stop events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("stop events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestStopAllHonorsContextDeadline(t *testing.T) {
	var events []string
	slow := module("checks")
	slow.stopWait = 5 * time.Second
	slow.events = &events
	fast := module("settings")
	fast.events = &events

	reg := bringUp(t, slow, fast)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	reg.StopAll(ctx)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("StopAll blocked for %v despite deadline", elapsed)
	}

	var sawFast bool
	for _, e := range events {
		if e == "stop:settings" {
			sawFast = true
		}
	}
	if !sawFast {
		t.Error("fast plugin never stopped")
	}
}

func TestStopAllSkipsDisabled(t *testing.T) {
	var events []string
	active := module("settings")
	active.events = &events
	broken := module("assist", "llm") // disabled: llm missing
	broken.events = &events

	reg := New(zap.NewNop())
	reg.Register(active)
	reg.Register(broken)
	reg.Validate()
	ctx := context.Background()
	reg.InitAll(ctx, nopDeps)
	reg.StartAll(ctx)

	events = events[:0]
	reg.StopAll(ctx)
	for _, e := range events {
		if e == "stop:assist" {
			t.Error("disabled plugin was stopped")
		}
	}
}

func TestLifecyclePanicContainment(t *testing.T) {
	t.Run("optional init panic disables", func(t *testing.T) {
		bad := module("checks")
		bad.panicIn = "init"
		good := module("settings")

		reg := New(zap.NewNop())
		reg.Register(bad)
		reg.Register(good)
		reg.Validate()
		if err := reg.InitAll(context.Background(), nopDeps); err != nil {
			t.Fatalf("InitAll: %v", err)
		}
		if !reg.IsDisabled("checks") {
			t.Error("panicking plugin still active")
		}
		if reg.IsDisabled("settings") {
			t.Error("healthy plugin was disabled")
		}
	})

	t.Run("required init panic surfaces as error", func(t *testing.T) {
		bad := module("settings")
		bad.info.Required = true
		bad.panicIn = "init"

		reg := New(zap.NewNop())
		reg.Register(bad)
		reg.Validate()
		err := reg.InitAll(context.Background(), nopDeps)
		if err == nil || !strings.Contains(err.Error(), "panicked") {
			t.Fatalf("InitAll = %v, want panic error", err)
		}
	})

	t.Run("start panic disables optional plugin", func(t *testing.T) {
		bad := module("assist")
		bad.panicIn = "start"

		reg := New(zap.NewNop())
		reg.Register(bad)
		reg.Validate()
		ctx := context.Background()
		reg.InitAll(ctx, nopDeps)
		if err := reg.StartAll(ctx); err != nil {
			t.Fatalf("StartAll: %v", err)
		}
		if !reg.IsDisabled("assist") {
			t.Error("panicking plugin still active")
		}
	})

	t.Run("stop panic does not block the rest", func(t *testing.T) {
		var events []string
		bad := module("llm")
		bad.panicIn = "stop"
		good := module("settings")
		good.events = &events

		reg := bringUp(t, bad, good)
		events = events[:0]
		reg.StopAll(context.Background())

		var sawGood bool
		for _, e := range events {
			if e == "stop:settings" {
				sawGood = true
			}
		}
		if !sawGood {
			t.Error("healthy plugin never stopped after sibling panicked")
		}
	})
}
