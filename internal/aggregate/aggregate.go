// Package aggregate builds monitoring snapshots by fanning out across every
// enabled data source in parallel. Its job is isolation and summarization:
// one controller (or one category within a controller) failing must never
// take down the rest of the snapshot. Retry and auth recovery belong to the
// individual clients, not here.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HerbHall/netsage/internal/cloudfleet"
	"github.com/HerbHall/netsage/internal/unifi"
	"github.com/HerbHall/netsage/pkg/models"
)

// Aggregation metrics.
var (
	snapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netsage_snapshot_duration_seconds",
			Help:    "Wall-clock time to build one monitoring snapshot.",
			Buckets: prometheus.DefBuckets,
		},
	)
	sourceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsage_source_failures_total",
			Help: "Monitoring sources that failed during snapshot builds.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(snapshotDuration)
	prometheus.MustRegister(sourceFailuresTotal)
}

// ControllerClient is the slice of the local controller client the
// aggregator consumes. Satisfied by *unifi.Client.
type ControllerClient interface {
	ID() string
	Name() string
	GetDevices(ctx context.Context) ([]models.Device, error)
	GetClients(ctx context.Context) ([]models.Client, error)
	GetHealthMetrics(ctx context.Context) ([]models.SiteHealth, error)
	GetNetworks(ctx context.Context) ([]models.Network, error)
	GetWLANs(ctx context.Context) ([]models.WLAN, error)
	GetAlarms(ctx context.Context) ([]models.Event, error)
	GetPortProfiles(ctx context.Context) ([]models.PortProfile, error)
	GetPortForwards(ctx context.Context) ([]models.PortForward, error)
	GetRoutes(ctx context.Context) ([]models.Route, error)
	GetIPSEvents(ctx context.Context) ([]models.Event, error)
	GetSiteEvents(ctx context.Context) ([]models.Event, error)
}

// CloudClient is the slice of the cloud fleet client the aggregator
// consumes. Satisfied by *cloudfleet.Client.
type CloudClient interface {
	FetchEverything(ctx context.Context) (*models.CloudData, error)
}

var (
	_ ControllerClient = (*unifi.Client)(nil)
	_ CloudClient      = (*cloudfleet.Client)(nil)
)

// Aggregator fans out across sources and assembles snapshots. Clients are
// constructed fresh per snapshot so stale sessions never outlive a
// configuration change.
type Aggregator struct {
	newController func(models.ControllerConfig) ControllerClient
	newCloud      func(models.CloudConfig) CloudClient
	logger        *zap.Logger
}

// New creates an aggregator backed by the real controller and cloud clients.
func New(logger *zap.Logger) *Aggregator {
	return &Aggregator{
		newController: func(cfg models.ControllerConfig) ControllerClient {
			return unifi.NewClient(cfg, logger)
		},
		newCloud: func(cfg models.CloudConfig) CloudClient {
			return cloudfleet.NewClient(cfg, logger)
		},
		logger: logger,
	}
}

// Snapshot builds one complete monitoring snapshot: all enabled controllers
// in parallel, the cloud source alongside. Controller results keep
// configuration order regardless of completion order.
func (a *Aggregator) Snapshot(ctx context.Context, controllers []models.ControllerConfig, cloud *models.CloudConfig) *models.MonitoringSnapshot {
	start := time.Now()
	defer func() { snapshotDuration.Observe(time.Since(start).Seconds()) }()

	snap := &models.MonitoringSnapshot{TakenAt: start.UTC()}

	enabled := make([]models.ControllerConfig, 0, len(controllers))
	for _, cfg := range controllers {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}

	var wg sync.WaitGroup
	results := make([]models.AggregationResult, len(enabled))
	for i, cfg := range enabled {
		wg.Add(1)
		go func(i int, cfg models.ControllerConfig) {
			defer wg.Done()
			results[i] = a.collectController(ctx, cfg)
		}(i, cfg)
	}

	var cloudResult *models.CloudResult
	if cloud != nil && cloud.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cloudResult = a.collectCloud(ctx, *cloud)
		}()
	}

	wg.Wait()

	snap.Controllers = results
	snap.Cloud = cloudResult
	snap.Summary = summarize(results)

	a.logger.Info("snapshot built",
		zap.Int("controllers", len(results)),
		zap.Bool("cloud", cloudResult != nil),
		zap.Duration("took", time.Since(start)),
	)
	return snap
}

// collectController gathers everything one controller offers. Device and
// client lists decide reachability: if either fails the whole source is
// tagged failed. Every other category is caught independently into the
// Failed map so it degrades without hiding its absence.
func (a *Aggregator) collectController(ctx context.Context, cfg models.ControllerConfig) models.AggregationResult {
	client := a.newController(cfg)
	result := models.AggregationResult{SourceID: cfg.ID, SourceName: cfg.Name}

	data := &models.ControllerData{Failed: make(map[models.Category]string)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	var devErr, clientErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		devices, err := client.GetDevices(ctx)
		mu.Lock()
		data.Devices, devErr = devices, err
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		clients, err := client.GetClients(ctx)
		mu.Lock()
		data.Clients, clientErr = clients, err
		mu.Unlock()
	}()

	supplementary := func(category models.Category, run func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(); err != nil {
				mu.Lock()
				data.Failed[category] = err.Error()
				mu.Unlock()
			}
		}()
	}

	supplementary(models.CategoryHealth, func() error {
		health, err := client.GetHealthMetrics(ctx)
		mu.Lock()
		data.Health = health
		mu.Unlock()
		return err
	})
	supplementary(models.CategorySiteEvents, func() error {
		events, err := client.GetSiteEvents(ctx)
		mu.Lock()
		data.SiteEvents = events
		data.ConnEvents = unifi.FilterConnectionEvents(events, time.Now(), 0)
		mu.Unlock()
		return err
	})
	supplementary(models.CategoryNetworks, func() error {
		networks, err := client.GetNetworks(ctx)
		mu.Lock()
		data.Networks = networks
		mu.Unlock()
		return err
	})
	supplementary(models.CategoryWLANs, func() error {
		wlans, err := client.GetWLANs(ctx)
		mu.Lock()
		data.WLANs = wlans
		mu.Unlock()
		return err
	})
	supplementary(models.CategoryAlarms, func() error {
		alarms, err := client.GetAlarms(ctx)
		mu.Lock()
		data.Alarms = alarms
		mu.Unlock()
		return err
	})
	supplementary(models.CategoryPortProfiles, func() error {
		profiles, err := client.GetPortProfiles(ctx)
		mu.Lock()
		data.PortProfiles = profiles
		mu.Unlock()
		return err
	})
	supplementary(models.CategoryPortForwards, func() error {
		forwards, err := client.GetPortForwards(ctx)
		mu.Lock()
		data.PortForwards = forwards
		mu.Unlock()
		return err
	})
	supplementary(models.CategoryRoutes, func() error {
		routes, err := client.GetRoutes(ctx)
		mu.Lock()
		data.Routes = routes
		mu.Unlock()
		return err
	})
	supplementary(models.CategoryIPSEvents, func() error {
		events, err := client.GetIPSEvents(ctx)
		mu.Lock()
		data.IPSEvents = events
		mu.Unlock()
		return err
	})

	wg.Wait()

	if devErr != nil || clientErr != nil {
		err := devErr
		if err == nil {
			err = clientErr
		}
		sourceFailuresTotal.WithLabelValues(cfg.Name).Inc()
		a.logger.Warn("controller unreachable",
			zap.String("controller", cfg.Name),
			zap.Error(err),
		)
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Data = data
	return result
}

func (a *Aggregator) collectCloud(ctx context.Context, cfg models.CloudConfig) *models.CloudResult {
	data, err := a.newCloud(cfg).FetchEverything(ctx)
	if err != nil {
		sourceFailuresTotal.WithLabelValues("cloud").Inc()
		a.logger.Warn("cloud fetch failed", zap.Error(err))
		return &models.CloudResult{Error: err.Error()}
	}
	return &models.CloudResult{Success: true, Data: data}
}

// summarize computes fleet totals across controllers that succeeded. All
// sources failed means no summary at all, so "no data" and "empty fleet"
// stay distinguishable.
func summarize(results []models.AggregationResult) *models.FleetSummary {
	summary := &models.FleetSummary{}
	for _, r := range results {
		if !r.Success || r.Data == nil {
			summary.ControllersFailed++
			continue
		}
		summary.Controllers++
		summary.TotalDevices += len(r.Data.Devices)
		for _, d := range r.Data.Devices {
			if d.Status == models.DeviceStatusOnline {
				summary.OnlineDevices++
			}
		}
		summary.TotalClients += len(r.Data.Clients)
		for _, c := range r.Data.Clients {
			if c.Wired {
				summary.WiredClients++
			} else {
				summary.WirelessClients++
			}
		}
	}
	if summary.Controllers == 0 {
		return nil
	}
	return summary
}
