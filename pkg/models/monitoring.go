package models

import "time"

// DeviceStatus is the normalized reachability state of an infrastructure
// device (switch, access point, gateway).
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
	// DeviceStatusUnknown means the source API exposed no status-like field
	// for this device. How an unknown resolves into online counts is a
	// per-source policy; see internal/unifi and internal/cloudfleet.
	DeviceStatusUnknown DeviceStatus = "unknown"
)

// Device is the normalized view of an infrastructure device across vendor
// API versions. ID is the first non-empty of MAC, serial, and vendor id.
type Device struct {
	ID     string       `json:"id" example:"aa:bb:cc:dd:ee:ff"`
	Name   string       `json:"name" example:"office-switch"`
	Model  string       `json:"model,omitempty" example:"USW-24-PoE"`
	Type   string       `json:"type,omitempty" example:"usw"`
	MAC    string       `json:"mac,omitempty"`
	IP     string       `json:"ip,omitempty" example:"10.0.0.2"`
	Status DeviceStatus `json:"status" example:"online"`
	Ports  []PortInfo   `json:"ports,omitempty"`
}

// PortInfo describes one physical port on a switch or gateway.
type PortInfo struct {
	Index     int    `json:"index" example:"3"`
	Name      string `json:"name,omitempty" example:"Port 3"`
	Up        bool   `json:"up"`
	SpeedMbps int    `json:"speed_mbps,omitempty" example:"1000"`
	RxErrors  int64  `json:"rx_errors,omitempty"`
	TxErrors  int64  `json:"tx_errors,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
}

// Client is an end-user device attached to the network.
type Client struct {
	MAC        string `json:"mac" example:"0e:1f:2a:3b:4c:5d"`
	Hostname   string `json:"hostname,omitempty" example:"lisas-laptop"`
	IP         string `json:"ip,omitempty" example:"10.0.0.143"`
	Wired      bool   `json:"wired"`
	SSID       string `json:"ssid,omitempty" example:"office-wifi"`
	Network    string `json:"network,omitempty" example:"LAN"`
	UplinkMAC  string `json:"uplink_mac,omitempty"`  // switch or AP the client hangs off
	UplinkPort int    `json:"uplink_port,omitempty"` // switch port, wired clients only
}

// Event is a generic timestamped record used uniformly for connection
// events, the site event log, alarms, and intrusion detections. The four
// differ only in source endpoint and filtering, not in shape.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key,omitempty" example:"EVT_WU_Connected"`
	Message   string    `json:"message"`
	Host      string    `json:"host,omitempty"` // hostname or MAC the event refers to
}

// Network is a configured network/VLAN.
type Network struct {
	ID      string `json:"id"`
	Name    string `json:"name" example:"IoT"`
	VLAN    int    `json:"vlan,omitempty" example:"30"`
	Subnet  string `json:"subnet,omitempty" example:"10.0.30.0/24"`
	Purpose string `json:"purpose,omitempty" example:"vlan-only"`
	Enabled bool   `json:"enabled"`
}

// WLAN is a configured wireless network.
type WLAN struct {
	ID       string `json:"id"`
	Name     string `json:"name" example:"office-wifi"`
	Enabled  bool   `json:"enabled"`
	Security string `json:"security,omitempty" example:"wpapsk"`
	Guest    bool   `json:"guest,omitempty"`
}

// PortProfile names a switch port profile so port listings can show
// profile names instead of opaque ids.
type PortProfile struct {
	ID   string `json:"id"`
	Name string `json:"name" example:"All"`
}

// PortForward is a configured port-forwarding rule.
type PortForward struct {
	Name     string `json:"name" example:"plex"`
	Proto    string `json:"proto,omitempty" example:"tcp"`
	Source   string `json:"source,omitempty" example:"any"`
	DstIP    string `json:"dst_ip,omitempty" example:"10.0.0.50"`
	DstPort  string `json:"dst_port,omitempty" example:"32400"`
	FwdPort  string `json:"fwd_port,omitempty" example:"32400"`
	Enabled  bool   `json:"enabled"`
}

// Route is a routing table entry.
type Route struct {
	Name        string `json:"name,omitempty"`
	Destination string `json:"destination" example:"0.0.0.0/0"`
	Nexthop     string `json:"nexthop,omitempty" example:"203.0.113.1"`
	Interface   string `json:"interface,omitempty" example:"eth8"`
	Static      bool   `json:"static,omitempty"`
}

// SiteHealth is one subsystem row from a controller's health endpoint.
type SiteHealth struct {
	Subsystem  string  `json:"subsystem" example:"wlan"`
	Status     string  `json:"status" example:"ok"`
	NumUser    int     `json:"num_user,omitempty"`
	NumGuest   int     `json:"num_guest,omitempty"`
	NumIoT     int     `json:"num_iot,omitempty"`
	TxBytesR   float64 `json:"tx_bytes_r,omitempty"`
	RxBytesR   float64 `json:"rx_bytes_r,omitempty"`
	WANIP      string  `json:"wan_ip,omitempty"`
	ISPName    string  `json:"isp_name,omitempty"`
	Latency    int     `json:"latency,omitempty"`
	Uptime     int64   `json:"uptime,omitempty"`
}

// ClientLocation is the answer to "which switch/AP is this IP attached to".
type ClientLocation struct {
	Client     Client `json:"client"`
	Controller string `json:"controller"`            // display name of the controller that matched
	Uplink     string `json:"uplink,omitempty"`      // display name of the uplink device
	UplinkType string `json:"uplink_type,omitempty"` // e.g. "usw", "uap"
	Port       int    `json:"port,omitempty"`        // wired clients only
}
