package cloudfleet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/netsage/pkg/fieldpath"
	"github.com/HerbHall/netsage/pkg/models"
)

// Candidate endpoint paths per resource, most-current API generation first.
// Keeping the stale generations in the list is what lets one binary talk to
// accounts on different release waves.
var (
	sitePaths = []string{"/ea/sites", "/v1/sites", "/api/v1/sites", "/sites"}

	devicePaths  = []string{"/ea/devices", "/v1/devices", "/api/v1/devices", "/devices"}
	clientPaths  = []string{"/ea/clients", "/v1/clients", "/api/v1/clients", "/clients"}
	alertPaths   = []string{"/ea/alerts", "/v1/alerts", "/ea/notifications", "/alerts"}
	ispPaths     = []string{"/ea/isp-metrics", "/v1/isp-metrics", "/ea/internet-health"}
	eventPaths   = []string{"/ea/events", "/v1/events", "/api/v1/events"}
	networkPaths = []string{"/ea/networks", "/v1/networks"}
	wlanPaths    = []string{"/ea/wlans", "/v1/wlans", "/ea/wifi"}
	gatewayPaths = []string{"/ea/gateways", "/v1/gateways", "/ea/hosts"}
	trafficPaths = []string{"/ea/traffic", "/v1/traffic", "/ea/insights"}
	accountPaths = []string{"/ea/account", "/v1/account", "/v1/users/self"}

	// Per-site forms, used only when the fleet-wide listing comes back empty.
	siteDevicePaths = []string{"/ea/sites/%s/devices", "/v1/sites/%s/devices"}
	siteClientPaths = []string{"/ea/sites/%s/clients", "/v1/sites/%s/clients"}
)

// siteIDKeys resolve a site's identifier across schema generations.
var siteIDKeys = []string{"id", "_id", "siteId", "site_id", "name"}

// GetSites returns the raw site list from the first answering candidate path.
func (c *Client) GetSites(ctx context.Context) ([]map[string]any, error) {
	return c.fetchFirst(ctx, "sites", sitePaths)
}

// GetDevices returns all fleet devices. When the fleet-wide listing yields
// nothing it iterates the known sites and merges per-site results, deduped,
// because some account tiers only expose devices under a site scope.
func (c *Client) GetDevices(ctx context.Context) ([]map[string]any, error) {
	rows, err := c.fetchFirst(ctx, "devices", devicePaths)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		rows = c.fetchPerSite(ctx, "devices", siteDevicePaths)
	}
	return markStatuslessOnline(rows), nil
}

// GetClients returns all fleet clients, with the same per-site fallback as
// GetDevices.
func (c *Client) GetClients(ctx context.Context) ([]map[string]any, error) {
	rows, err := c.fetchFirst(ctx, "clients", clientPaths)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		rows = c.fetchPerSite(ctx, "clients", siteClientPaths)
	}
	return rows, nil
}

func (c *Client) GetAlerts(ctx context.Context) ([]map[string]any, error) {
	return c.fetchFirst(ctx, "alerts", alertPaths)
}

func (c *Client) GetInternetHealth(ctx context.Context) ([]map[string]any, error) {
	return c.fetchFirst(ctx, "metrics", ispPaths)
}

func (c *Client) GetEvents(ctx context.Context) ([]map[string]any, error) {
	return c.fetchFirst(ctx, "events", eventPaths)
}

func (c *Client) GetNetworks(ctx context.Context) ([]map[string]any, error) {
	return c.fetchFirst(ctx, "networks", networkPaths)
}

func (c *Client) GetWLANs(ctx context.Context) ([]map[string]any, error) {
	return c.fetchFirst(ctx, "wlans", wlanPaths)
}

func (c *Client) GetGateways(ctx context.Context) ([]map[string]any, error) {
	return c.fetchFirst(ctx, "gateways", gatewayPaths)
}

func (c *Client) GetTraffic(ctx context.Context) ([]map[string]any, error) {
	return c.fetchFirst(ctx, "traffic", trafficPaths)
}

// GetAccount returns the account object (not a list) from the first
// answering candidate path.
func (c *Client) GetAccount(ctx context.Context) (map[string]any, error) {
	var lastErr error
	for _, path := range accountPaths {
		body, err := c.get(ctx, path)
		if err != nil {
			if models.IsAuthError(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(body, &obj); err != nil {
			lastErr = fmt.Errorf("decode account response: %w", err)
			continue
		}
		if nested, ok := obj["data"].(map[string]any); ok {
			return nested, nil
		}
		return obj, nil
	}
	return nil, lastErr
}

// fetchPerSite iterates all known sites and merges results from the per-site
// path forms, deduplicating by whatever identifier each record carries.
// Best effort: a site that errors contributes nothing.
func (c *Client) fetchPerSite(ctx context.Context, resourceKey string, pathForms []string) []map[string]any {
	sites, err := c.GetSites(ctx)
	if err != nil || len(sites) == 0 {
		return []map[string]any{}
	}

	merged := make([]map[string]any, 0)
	seen := make(map[string]bool)
	for _, site := range sites {
		siteID := fieldpath.String(site, siteIDKeys...)
		if siteID == "" {
			continue
		}
		for _, form := range pathForms {
			body, err := c.get(ctx, fmt.Sprintf(form, siteID))
			if err != nil {
				continue
			}
			for _, row := range ExtractArray(body, resourceKey) {
				key := recordIdentity(row)
				if key != "" && seen[key] {
					continue
				}
				if key != "" {
					seen[key] = true
				}
				merged = append(merged, row)
			}
			break
		}
	}
	return merged
}

// recordIdentity derives a dedup key for a dynamic record. Empty when the
// record carries no usable identifier.
func recordIdentity(row map[string]any) string {
	id := fieldpath.String(row, "mac", "id", "_id", "serial", "deviceId", "device_id")
	return strings.ToLower(id)
}

// statusKeys are the fields that count as "this record reports a status".
var statusKeys = []string{"status", "state", "online", "connected", "is_online", "isOnline"}

// markStatuslessOnline applies the cloud leniency rule: only when not a
// single device in the list reports any status-like field does the whole
// list get stamped online. A list where even one device reports status is
// left untouched, absent fields included.
func markStatuslessOnline(rows []map[string]any) []map[string]any {
	for _, row := range rows {
		if fieldpath.Has(row, statusKeys...) {
			return rows
		}
	}
	for _, row := range rows {
		row["status"] = "online"
	}
	return rows
}

// CountOnlineDevices tallies online vs total across a dynamic device list.
func CountOnlineDevices(rows []map[string]any) (online, total int) {
	for _, row := range rows {
		total++
		if deviceOnline(row) {
			online++
		}
	}
	return online, total
}

func deviceOnline(row map[string]any) bool {
	if b, ok := fieldpath.Bool(row, "online", "connected", "is_online", "isOnline"); ok {
		return b
	}
	switch strings.ToLower(fieldpath.String(row, "status", "state")) {
	case "online", "connected", "ok", "up", "1":
		return true
	}
	if n, ok := fieldpath.Number(row, "state"); ok {
		return n == 1
	}
	return false
}

// FetchEverything pulls every cloud resource concurrently. Individual
// resource failures degrade to empty sections; the call as a whole fails
// only when authentication is rejected or nothing at all could be fetched.
func (c *Client) FetchEverything(ctx context.Context) (*models.CloudData, error) {
	// Sites come first: the per-site fallbacks inside GetDevices/GetClients
	// need them, and an auth rejection here fails fast for the whole source.
	data := &models.CloudData{}
	sites, err := c.GetSites(ctx)
	if err != nil {
		if models.IsAuthError(err) {
			return nil, err
		}
		c.logger.Debug("cloud sites unavailable", zap.Error(err))
	}
	data.Sites = sites

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		okCount  int
		firstErr error
	)
	fetch := func(name string, run func(context.Context) ([]map[string]any, error), dst *[]map[string]any) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := run(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				c.logger.Debug("cloud resource unavailable",
					zap.String("resource", name), zap.Error(err))
				return
			}
			*dst = rows
			okCount++
		}()
	}

	fetch("devices", c.GetDevices, &data.Devices)
	fetch("clients", c.GetClients, &data.Clients)
	fetch("alerts", c.GetAlerts, &data.Alerts)
	fetch("internet_health", c.GetInternetHealth, &data.InternetHealth)
	fetch("events", c.GetEvents, &data.Events)
	fetch("networks", c.GetNetworks, &data.Networks)
	fetch("wlans", c.GetWLANs, &data.WLANs)
	fetch("gateways", c.GetGateways, &data.Gateways)
	fetch("traffic", c.GetTraffic, &data.Traffic)

	wg.Add(1)
	go func() {
		defer wg.Done()
		account, err := c.GetAccount(ctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			c.logger.Debug("cloud account unavailable", zap.Error(err))
			return
		}
		data.Account = account
		okCount++
	}()

	wg.Wait()

	if models.IsAuthError(firstErr) {
		return nil, firstErr
	}
	if okCount == 0 && len(data.Sites) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, &models.SourceError{
			Code:    models.ErrCodeUpstream,
			Message: "cloud API returned no data for any resource",
		}
	}
	return data, nil
}
