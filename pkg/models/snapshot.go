package models

import "time"

// Category identifies one data category fetched from a monitoring source.
// Used to keep "fetch failed" distinguishable from "fetched, empty" per
// category inside an otherwise successful aggregation.
type Category string

const (
	CategoryDevices      Category = "devices"
	CategoryClients      Category = "clients"
	CategoryConnEvents   Category = "connection_events"
	CategorySiteEvents   Category = "site_events"
	CategoryAlarms       Category = "alarms"
	CategoryIPSEvents    Category = "ips_events"
	CategoryNetworks     Category = "networks"
	CategoryWLANs        Category = "wlans"
	CategoryPortProfiles Category = "port_profiles"
	CategoryHealth       Category = "health"
	CategoryPortForwards Category = "port_forwards"
	CategoryRoutes       Category = "routes"
)

// ControllerData is everything one local controller contributed to a
// snapshot. Slices are empty (not nil-significant) when a category returned
// nothing; a category that could not be fetched at all is listed in Failed.
type ControllerData struct {
	Devices      []Device      `json:"devices"`
	Clients      []Client      `json:"clients"`
	ConnEvents   []Event       `json:"connection_events,omitempty"`
	SiteEvents   []Event       `json:"site_events,omitempty"`
	Alarms       []Event       `json:"alarms,omitempty"`
	IPSEvents    []Event       `json:"ips_events,omitempty"`
	Networks     []Network     `json:"networks,omitempty"`
	WLANs        []WLAN        `json:"wlans,omitempty"`
	PortProfiles []PortProfile `json:"port_profiles,omitempty"`
	Health       []SiteHealth  `json:"health,omitempty"`
	PortForwards []PortForward `json:"port_forwards,omitempty"`
	Routes       []Route       `json:"routes,omitempty"`

	// Failed maps a category to the error that prevented fetching it.
	// Supplementary categories land here instead of failing the source.
	Failed map[Category]string `json:"failed,omitempty"`
}

// CategoryFailed reports whether a category fetch failed for this source.
func (d *ControllerData) CategoryFailed(c Category) bool {
	if d == nil || d.Failed == nil {
		return false
	}
	_, ok := d.Failed[c]
	return ok
}

// AggregationResult is the per-source outcome of one aggregation pass.
// Exactly one of Data (success) or Error (failure) is meaningful.
type AggregationResult struct {
	SourceID   string          `json:"source_id" example:"ctl-1"`
	SourceName string          `json:"source_name" example:"Head Office"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	Data       *ControllerData `json:"data,omitempty"`
}

// CloudData is the best-effort bag of everything the cloud fleet API
// returned. Entities stay dynamically shaped because the cloud API's schema
// varies by account tier and version; rendering resolves fields through
// pkg/fieldpath candidate lists.
type CloudData struct {
	Sites          []map[string]any `json:"sites,omitempty"`
	Devices        []map[string]any `json:"devices,omitempty"`
	Clients        []map[string]any `json:"clients,omitempty"`
	Alerts         []map[string]any `json:"alerts,omitempty"`
	InternetHealth []map[string]any `json:"internet_health,omitempty"`
	Events         []map[string]any `json:"events,omitempty"`
	Networks       []map[string]any `json:"networks,omitempty"`
	WLANs          []map[string]any `json:"wlans,omitempty"`
	Gateways       []map[string]any `json:"gateways,omitempty"`
	Traffic        []map[string]any `json:"traffic,omitempty"`
	Account        map[string]any   `json:"account,omitempty"`
}

// CloudResult tags the cloud contribution with success/failure, mirroring
// AggregationResult for local controllers.
type CloudResult struct {
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
	Data    *CloudData `json:"data,omitempty"`
}

// FleetSummary is computed across controllers that succeeded. A snapshot
// where every controller failed carries a nil summary so callers can tell
// "no data" apart from "fleet is empty".
type FleetSummary struct {
	Controllers       int `json:"controllers"`        // sources that succeeded
	ControllersFailed int `json:"controllers_failed"` // sources that did not
	TotalDevices      int `json:"total_devices"`
	OnlineDevices     int `json:"online_devices"`
	TotalClients      int `json:"total_clients"`
	WiredClients      int `json:"wired_clients"`
	WirelessClients   int `json:"wireless_clients"`
}

// MonitoringSnapshot is the complete normalized view of all monitoring
// sources as of one aggregation pass. Snapshots are rebuilt per request;
// nothing here is a durability promise.
type MonitoringSnapshot struct {
	TakenAt     time.Time           `json:"taken_at"`
	Controllers []AggregationResult `json:"controllers"` // configuration order
	Summary     *FleetSummary       `json:"summary,omitempty"`
	Cloud       *CloudResult        `json:"cloud,omitempty"` // nil when cloud is disabled
}

// AllFailed reports whether no source contributed any data.
func (s *MonitoringSnapshot) AllFailed() bool {
	for _, c := range s.Controllers {
		if c.Success {
			return false
		}
	}
	if s.Cloud != nil && s.Cloud.Success {
		return false
	}
	return true
}

// ControllerConfig describes one local controller as configured.
// Read-only to the monitoring engine; owned by settings.
type ControllerConfig struct {
	ID        string `json:"id" example:"ctl-1"`
	Name      string `json:"name" example:"Head Office"`
	Enabled   bool   `json:"enabled"`
	BaseURL   string `json:"base_url" example:"https://10.0.0.1"`
	APIKey    string `json:"api_key,omitempty"`
	Site      string `json:"site" example:"default"`
	VerifySSL bool   `json:"verify_ssl"`
}

// CloudConfig describes the optional cloud fleet API connection.
type CloudConfig struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url" example:"https://api.ui.com"`
}
