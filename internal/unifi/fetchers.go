package unifi

import (
	"context"

	"go.uber.org/zap"

	"github.com/HerbHall/netsage/pkg/fieldpath"
	"github.com/HerbHall/netsage/pkg/models"
)

// Load-bearing fetchers (GetSystemInfo, GetDevices, GetClients,
// GetHealthMetrics) propagate errors: their callers use them to decide
// whether the controller is reachable at all. Everything else is
// supplementary and degrades to an empty, always-usable slice -- a
// controller without an IPS license or with alarms disabled should not
// block an answer. The error alongside is informational: the aggregator
// files it per category so "unavailable" and "none configured" stay
// distinguishable downstream, but no caller has to check it.

// GetSystemInfo fetches the controller's system information record.
func (c *Client) GetSystemInfo(ctx context.Context) (map[string]any, error) {
	rows, err := c.apiRequest(ctx, "stat/sysinfo")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return map[string]any{}, nil
	}
	return rows[0], nil
}

// GetDevices fetches and normalizes the site's infrastructure devices.
func (c *Client) GetDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := c.apiRequest(ctx, "stat/device")
	if err != nil {
		return nil, err
	}
	return normalizeDevices(rows), nil
}

// GetClients fetches and normalizes the site's active clients. Records with
// no usable identifier (no MAC, no IP, no name) are dropped: a user cannot
// meaningfully refer to them.
func (c *Client) GetClients(ctx context.Context) ([]models.Client, error) {
	rows, err := c.apiRequest(ctx, "stat/sta")
	if err != nil {
		return nil, err
	}

	clients := make([]models.Client, 0, len(rows))
	for _, row := range rows {
		cl := normalizeClient(row)
		if cl.MAC == "" && cl.IP == "" && cl.Hostname == "" {
			continue
		}
		clients = append(clients, cl)
	}
	return clients, nil
}

// GetHealthMetrics fetches the per-subsystem site health rows.
func (c *Client) GetHealthMetrics(ctx context.Context) ([]models.SiteHealth, error) {
	rows, err := c.apiRequest(ctx, "stat/health")
	if err != nil {
		return nil, err
	}

	health := make([]models.SiteHealth, 0, len(rows))
	for _, row := range rows {
		h := models.SiteHealth{
			Subsystem: fieldpath.String(row, "subsystem", "name"),
			Status:    fieldpath.String(row, "status", "state"),
			WANIP:     fieldpath.String(row, "wan_ip"),
			ISPName:   fieldpath.String(row, "isp_name", "isp_organization"),
		}
		if n, ok := fieldpath.Number(row, "num_user"); ok {
			h.NumUser = int(n)
		}
		if n, ok := fieldpath.Number(row, "num_guest"); ok {
			h.NumGuest = int(n)
		}
		if n, ok := fieldpath.Number(row, "num_iot"); ok {
			h.NumIoT = int(n)
		}
		if n, ok := fieldpath.Number(row, "tx_bytes-r", "tx_bytes_r"); ok {
			h.TxBytesR = n
		}
		if n, ok := fieldpath.Number(row, "rx_bytes-r", "rx_bytes_r"); ok {
			h.RxBytesR = n
		}
		if n, ok := fieldpath.Number(row, "latency"); ok {
			h.Latency = int(n)
		}
		if n, ok := fieldpath.Number(row, "uptime", "gw_system-stats.uptime"); ok {
			h.Uptime = int64(n)
		}
		health = append(health, h)
	}
	return health, nil
}

// GetNetworks fetches configured networks/VLANs. Best effort.
func (c *Client) GetNetworks(ctx context.Context) ([]models.Network, error) {
	rows, err := c.apiRequest(ctx, "rest/networkconf")
	if err != nil {
		c.supplementaryMiss("networks", err)
		return []models.Network{}, err
	}

	nets := make([]models.Network, 0, len(rows))
	for _, row := range rows {
		n := models.Network{
			ID:      fieldpath.String(row, "_id", "id"),
			Name:    fieldpath.String(row, "name"),
			Subnet:  fieldpath.String(row, "ip_subnet", "subnet"),
			Purpose: fieldpath.String(row, "purpose"),
		}
		if v, ok := fieldpath.Number(row, "vlan"); ok {
			n.VLAN = int(v)
		}
		if b, ok := fieldpath.Bool(row, "enabled"); ok {
			n.Enabled = b
		} else {
			n.Enabled = true
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// GetWLANs fetches configured wireless networks. Best effort.
func (c *Client) GetWLANs(ctx context.Context) ([]models.WLAN, error) {
	rows, err := c.apiRequest(ctx, "rest/wlanconf")
	if err != nil {
		c.supplementaryMiss("wlans", err)
		return []models.WLAN{}, err
	}

	wlans := make([]models.WLAN, 0, len(rows))
	for _, row := range rows {
		w := models.WLAN{
			ID:       fieldpath.String(row, "_id", "id"),
			Name:     fieldpath.String(row, "name", "essid"),
			Security: fieldpath.String(row, "security", "wpa_mode"),
		}
		if b, ok := fieldpath.Bool(row, "enabled"); ok {
			w.Enabled = b
		}
		if b, ok := fieldpath.Bool(row, "is_guest"); ok {
			w.Guest = b
		}
		wlans = append(wlans, w)
	}
	return wlans, nil
}

// GetAlarms fetches active alarms as events. Best effort.
func (c *Client) GetAlarms(ctx context.Context) ([]models.Event, error) {
	rows, err := c.apiRequest(ctx, "stat/alarm")
	if err != nil {
		c.supplementaryMiss("alarms", err)
		return []models.Event{}, err
	}
	return normalizeEvents(rows), nil
}

// GetPortProfiles fetches switch port profiles. Best effort.
func (c *Client) GetPortProfiles(ctx context.Context) ([]models.PortProfile, error) {
	rows, err := c.apiRequest(ctx, "rest/portconf")
	if err != nil {
		c.supplementaryMiss("port profiles", err)
		return []models.PortProfile{}, err
	}

	profiles := make([]models.PortProfile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, models.PortProfile{
			ID:   fieldpath.String(row, "_id", "id"),
			Name: fieldpath.String(row, "name"),
		})
	}
	return profiles, nil
}

// GetPortForwards fetches port-forwarding rules. Best effort.
func (c *Client) GetPortForwards(ctx context.Context) ([]models.PortForward, error) {
	rows, err := c.apiRequest(ctx, "rest/portforward")
	if err != nil {
		c.supplementaryMiss("port forwards", err)
		return []models.PortForward{}, err
	}

	fwds := make([]models.PortForward, 0, len(rows))
	for _, row := range rows {
		f := models.PortForward{
			Name:    fieldpath.String(row, "name"),
			Proto:   fieldpath.String(row, "proto", "protocol"),
			Source:  fieldpath.String(row, "src", "source"),
			DstIP:   fieldpath.String(row, "fwd", "dst_ip", "destination_ip"),
			DstPort: fieldpath.String(row, "dst_port"),
			FwdPort: fieldpath.String(row, "fwd_port"),
		}
		if b, ok := fieldpath.Bool(row, "enabled"); ok {
			f.Enabled = b
		}
		fwds = append(fwds, f)
	}
	return fwds, nil
}

// GetRoutes fetches the routing table. Best effort.
func (c *Client) GetRoutes(ctx context.Context) ([]models.Route, error) {
	rows, err := c.apiRequest(ctx, "stat/routing")
	if err != nil {
		c.supplementaryMiss("routes", err)
		return []models.Route{}, err
	}

	routes := make([]models.Route, 0, len(rows))
	for _, row := range rows {
		r := models.Route{
			Name:        fieldpath.String(row, "name"),
			Destination: fieldpath.String(row, "pfx", "destination", "static-route_network"),
			Nexthop:     fieldpath.String(row, "nh.0.t", "nexthop", "static-route_nexthop", "gateway"),
			Interface:   fieldpath.String(row, "nh.0.intf", "interface", "iface"),
		}
		if t := fieldpath.String(row, "type", "static-route_type"); t != "" {
			r.Static = t == "static" || t == "static-route" || t == "nexthop-route"
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// GetIPSEvents fetches intrusion/threat events. Best effort.
func (c *Client) GetIPSEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := c.apiRequest(ctx, "stat/ips/event")
	if err != nil {
		c.supplementaryMiss("ips events", err)
		return []models.Event{}, err
	}
	return normalizeEvents(rows), nil
}

// GetSiteEvents fetches the general event log. Best effort.
func (c *Client) GetSiteEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := c.apiRequest(ctx, "stat/event")
	if err != nil {
		c.supplementaryMiss("site events", err)
		return []models.Event{}, err
	}
	return normalizeEvents(rows), nil
}

func (c *Client) supplementaryMiss(category string, err error) {
	c.logger.Debug("supplementary fetch unavailable",
		zap.String("controller", c.cfg.Name),
		zap.String("category", category),
		zap.Error(err),
	)
}

// normalizeDevices maps raw device rows into the normalized model.
//
// Status policy (deliberate leniency, do not "fix"): a device with an
// explicit offline-like value is offline; a device with an explicit
// online-like value is online; a device carrying no status-like field at all
// is reported online, so fleet summaries always account for every device.
// The cloud client applies a different, whole-list variant of this rule --
// the divergence is intentional and documented in DESIGN.md.
func normalizeDevices(rows []map[string]any) []models.Device {
	devices := make([]models.Device, 0, len(rows))
	for _, row := range rows {
		d := models.Device{
			ID:     fieldpath.String(row, "mac", "serial", "_id", "device_id"),
			Name:   fieldpath.String(row, "name", "hostname", "model"),
			Model:  fieldpath.String(row, "model", "shortname"),
			Type:   fieldpath.String(row, "type"),
			MAC:    fieldpath.String(row, "mac"),
			IP:     fieldpath.String(row, "ip", "connect_request_ip"),
			Status: deviceStatus(row),
			Ports:  normalizePorts(row),
		}
		if d.ID == "" && d.Name == "" {
			continue
		}
		devices = append(devices, d)
	}
	return devices
}

// deviceStatus resolves the tri-state status of one raw device row.
func deviceStatus(row map[string]any) models.DeviceStatus {
	// Numeric state: 1 = connected in every firmware generation seen.
	if n, ok := fieldpath.Number(row, "state"); ok {
		if n == 1 {
			return models.DeviceStatusOnline
		}
		return models.DeviceStatusOffline
	}
	if s := fieldpath.String(row, "status"); s != "" {
		switch s {
		case "online", "connected", "ok", "up":
			return models.DeviceStatusOnline
		case "offline", "disconnected", "down":
			return models.DeviceStatusOffline
		}
	}
	if b, ok := fieldpath.Bool(row, "adopted"); ok && !b {
		return models.DeviceStatusOffline
	}
	// No status-like field: leniency default, see normalizeDevices.
	return models.DeviceStatusOnline
}

func normalizePorts(row map[string]any) []models.PortInfo {
	raw, ok := row["port_table"].([]any)
	if !ok {
		return nil
	}

	ports := make([]models.PortInfo, 0, len(raw))
	for _, item := range raw {
		p, ok := item.(map[string]any)
		if !ok {
			continue
		}
		info := models.PortInfo{
			Name:      fieldpath.String(p, "name"),
			ProfileID: fieldpath.String(p, "portconf_id", "port_profile_id"),
		}
		if n, ok := fieldpath.Number(p, "port_idx", "index"); ok {
			info.Index = int(n)
		}
		if b, ok := fieldpath.Bool(p, "up"); ok {
			info.Up = b
		}
		if n, ok := fieldpath.Number(p, "speed"); ok {
			info.SpeedMbps = int(n)
		}
		if n, ok := fieldpath.Number(p, "rx_errors"); ok {
			info.RxErrors = int64(n)
		}
		if n, ok := fieldpath.Number(p, "tx_errors"); ok {
			info.TxErrors = int64(n)
		}
		ports = append(ports, info)
	}
	return ports
}

func normalizeClient(row map[string]any) models.Client {
	cl := models.Client{
		MAC:      fieldpath.String(row, "mac"),
		Hostname: fieldpath.String(row, "hostname", "name", "device_name"),
		IP:       fieldpath.String(row, "ip", "fixed_ip", "network.ip", "last_ip"),
		SSID:     fieldpath.String(row, "essid", "ssid"),
		Network:  fieldpath.String(row, "network", "network_name"),
	}

	if b, ok := fieldpath.Bool(row, "is_wired"); ok {
		cl.Wired = b
	} else {
		// No radio fields means no wireless association was reported.
		cl.Wired = fieldpath.String(row, "essid", "ap_mac", "radio") == ""
	}

	if cl.Wired {
		cl.UplinkMAC = fieldpath.String(row, "sw_mac", "uplink_mac", "gw_mac")
		if n, ok := fieldpath.Number(row, "sw_port", "uplink_remote_port"); ok {
			cl.UplinkPort = int(n)
		}
	} else {
		cl.UplinkMAC = fieldpath.String(row, "ap_mac", "uplink_mac")
	}
	return cl
}
