// Package contextgen renders a monitoring snapshot, optional diagnostic
// output, and an optional IP-to-client lookup into one bounded text block
// for a downstream language-model call. Section order is fixed and every
// list section has a hard line cap, so the output size is predictable no
// matter how large the fleet is.
package contextgen

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/netsage/internal/diag"
	"github.com/HerbHall/netsage/pkg/models"
)

// Per-section line caps. Past the cap the section ends with a
// "...and N more" marker instead of more lines.
const (
	maxSiteLines      = 10
	maxConnEventLines = 15
	maxLogLines       = 20
	maxClientLines    = 50
	maxDeviceLines    = 50
	maxPortLines      = 40
	maxRollupLines    = 25
	maxNetworkLines   = 20
	maxWLANLines      = 15
	maxAlarmLines     = 15
	maxProfileLines   = 15
	maxHealthLines    = 10
	maxForwardLines   = 20
	maxRouteLines     = 20
	maxIPSLines       = 15
	maxCloudLines     = 25
)

const diagPreamble = "Diagnostic command output"

// DiagRunner executes diagnostics. Satisfied by *diag.Runner.
type DiagRunner interface {
	Ping(ctx context.Context, host string, count int) diag.Result
	Traceroute(ctx context.Context, host string, maxHops int) diag.Result
	TestPort(ctx context.Context, host string, port int) diag.Result
}

// ClientLocator finds which switch or AP a client IP hangs off, across all
// configured controllers. Nil when no local controller is configured.
type ClientLocator interface {
	LocateClient(ctx context.Context, ip string) (*models.ClientLocation, error)
}

var _ DiagRunner = (*diag.Runner)(nil)

// Formatter builds context blocks. Stateless; safe for concurrent use.
type Formatter struct {
	diag    DiagRunner
	locator ClientLocator
	logger  *zap.Logger
}

// New creates a formatter. locator may be nil when no controllers exist.
func New(runner DiagRunner, locator ClientLocator, logger *zap.Logger) *Formatter {
	return &Formatter{diag: runner, locator: locator, logger: logger}
}

// Build renders the full context for one user message. At most one
// diagnostic runs per call; the IP lookup always produces a sentence (match
// or not-found) when the message contains an IPv4 address and a controller
// is configured.
func (f *Formatter) Build(ctx context.Context, snap *models.MonitoringSnapshot, message string, history []string) string {
	var b strings.Builder

	f.appendDiagnostics(ctx, &b, message, history)
	f.appendIPLookup(ctx, &b, message)

	if snap == nil || snap.AllFailed() {
		b.WriteString("No monitoring data available: every configured monitoring source failed or none are configured. Do not invent device or client details.\n")
		return b.String()
	}

	appendFleetSummary(&b, snap.Summary)
	appendSiteBreakdown(&b, snap.Controllers)
	appendControllerSections(&b, snap.Controllers)
	appendCloudSections(&b, snap.Cloud)

	return b.String()
}

func (f *Formatter) appendDiagnostics(ctx context.Context, b *strings.Builder, message string, history []string) {
	intent := diag.DetectIntent(message, history)
	if intent == nil {
		return
	}

	var res diag.Result
	switch intent.Kind {
	case diag.IntentPing:
		res = f.diag.Ping(ctx, intent.Host, intent.Count)
	case diag.IntentTraceroute:
		res = f.diag.Traceroute(ctx, intent.Host, intent.Count)
	case diag.IntentPortTest:
		res = f.diag.TestPort(ctx, intent.Host, intent.Port)
	default:
		return
	}

	fmt.Fprintf(b, "%s (%s):\n%s", diagPreamble, res.Command, res.Output)
	if res.Output != "" && !strings.HasSuffix(res.Output, "\n") {
		b.WriteString("\n")
	}
	if res.Error != "" {
		fmt.Fprintf(b, "Command error: %s\n", res.Error)
	}
	b.WriteString("\n")
	f.logger.Debug("diagnostic executed",
		zap.String("kind", string(intent.Kind)),
		zap.String("host", intent.Host),
	)
}

// appendIPLookup emits a sentence for every message containing a literal
// IPv4 address: either where the client is attached, or an explicit
// not-found. Silence here would invite the model to guess.
func (f *Formatter) appendIPLookup(ctx context.Context, b *strings.Builder, message string) {
	ip := diag.FindIPv4(message)
	if ip == "" || f.locator == nil {
		return
	}

	loc, err := f.locator.LocateClient(ctx, ip)
	switch {
	case err != nil:
		fmt.Fprintf(b, "Client lookup for %s failed: %v\n\n", ip, err)
	case loc == nil:
		fmt.Fprintf(b, "No client with IP %s was found on any controller.\n\n", ip)
	default:
		name := loc.Client.Hostname
		if name == "" {
			name = loc.Client.MAC
		}
		if loc.Client.Wired && loc.Port > 0 {
			fmt.Fprintf(b, "Client %s (%s) is wired to %s port %d on controller %s.\n\n",
				name, ip, loc.Uplink, loc.Port, loc.Controller)
		} else if loc.Uplink != "" {
			fmt.Fprintf(b, "Client %s (%s) is connected via %s on controller %s.\n\n",
				name, ip, loc.Uplink, loc.Controller)
		} else {
			fmt.Fprintf(b, "Client %s (%s) was found on controller %s.\n\n", name, ip, loc.Controller)
		}
	}
}

func appendFleetSummary(b *strings.Builder, s *models.FleetSummary) {
	if s == nil {
		return
	}
	b.WriteString("=== Fleet Summary ===\n")
	fmt.Fprintf(b, "Controllers: %d reachable, %d failed\n", s.Controllers, s.ControllersFailed)
	fmt.Fprintf(b, "Devices: %d total, %d online\n", s.TotalDevices, s.OnlineDevices)
	fmt.Fprintf(b, "Clients: %d total (%d wired, %d wireless)\n\n",
		s.TotalClients, s.WiredClients, s.WirelessClients)
}

func appendSiteBreakdown(b *strings.Builder, results []models.AggregationResult) {
	if len(results) == 0 {
		return
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if !r.Success {
			lines = append(lines, fmt.Sprintf("%s: UNAVAILABLE (%s)", r.SourceName, r.Error))
			continue
		}
		online := 0
		for _, d := range r.Data.Devices {
			if d.Status == models.DeviceStatusOnline {
				online++
			}
		}
		lines = append(lines, fmt.Sprintf("%s: %d devices (%d online), %d clients",
			r.SourceName, len(r.Data.Devices), online, len(r.Data.Clients)))
	}
	writeSection(b, "Per-Site Breakdown", lines, maxSiteLines)
}

// appendControllerSections walks every successful controller in
// configuration order and renders each data category in the fixed order.
func appendControllerSections(b *strings.Builder, results []models.AggregationResult) {
	for _, r := range results {
		if !r.Success || r.Data == nil {
			continue
		}
		d := r.Data
		prefix := r.SourceName

		writeSection(b, prefix+" Recent Connections", connEventLines(d.ConnEvents), maxConnEventLines)
		writeSection(b, prefix+" Event Log", eventLines(d.SiteEvents), maxLogLines)
		writeSection(b, prefix+" Clients", clientLines(d.Clients), maxClientLines)
		writeSection(b, prefix+" Devices", deviceLines(d.Devices), maxDeviceLines)
		writeSection(b, prefix+" Port Details", portLines(d.Devices, d.PortProfiles), maxPortLines)
		writeSection(b, prefix+" Clients per Device", rollupLines(d.Devices, d.Clients), maxRollupLines)
		writeSection(b, prefix+" Networks/VLANs", networkLines(d.Networks), maxNetworkLines)
		writeSection(b, prefix+" Wireless Networks", wlanLines(d.WLANs), maxWLANLines)

		writeEmptyAware(b, prefix+" Alarms", alarmLines(d.Alarms), maxAlarmLines,
			d.CategoryFailed(models.CategoryAlarms),
			"Alarm data unavailable (controller API error).",
			"No active alarms.")

		writeSection(b, prefix+" Port Profiles", profileLines(d.PortProfiles), maxProfileLines)
		writeSection(b, prefix+" Site Health", healthLines(d.Health), maxHealthLines)

		writeEmptyAware(b, prefix+" Port Forwards", forwardLines(d.PortForwards), maxForwardLines,
			d.CategoryFailed(models.CategoryPortForwards),
			"Port-forward data unavailable (controller API error).",
			"No port-forwarding rules configured.")

		writeEmptyAware(b, prefix+" Routes", routeLines(d.Routes), maxRouteLines,
			d.CategoryFailed(models.CategoryRoutes),
			"Routing data unavailable (controller API error).",
			"No static routes configured.")

		writeSection(b, prefix+" Threat Events", eventLines(d.IPSEvents), maxIPSLines)
	}
}

// writeSection renders a titled list capped at max lines. Empty lists are
// omitted entirely.
func writeSection(b *strings.Builder, title string, lines []string, max int) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "=== %s ===\n", title)
	n := len(lines)
	if n > max {
		n = max
	}
	for _, line := range lines[:n] {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(lines) > max {
		fmt.Fprintf(b, "...and %d more\n", len(lines)-max)
	}
	b.WriteString("\n")
}

// writeEmptyAware is writeSection for categories that must never be
// silently absent: a failed fetch and a successful-but-empty fetch emit
// different explicit sentences.
func writeEmptyAware(b *strings.Builder, title string, lines []string, max int, failed bool, failedMsg, emptyMsg string) {
	if len(lines) > 0 {
		writeSection(b, title, lines, max)
		return
	}
	fmt.Fprintf(b, "=== %s ===\n", title)
	if failed {
		b.WriteString(failedMsg)
	} else {
		b.WriteString(emptyMsg)
	}
	b.WriteString("\n\n")
}

func connEventLines(events []models.Event) []string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		who := e.Host
		if who == "" {
			who = e.Message
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%s)",
			e.Timestamp.Format("15:04:05"), who, e.Key))
	}
	return lines
}

func eventLines(events []models.Event) []string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		line := e.Message
		if line == "" {
			line = e.Key
		}
		if line == "" {
			continue
		}
		if !e.Timestamp.IsZero() {
			line = e.Timestamp.Format("2006-01-02 15:04:05") + " " + line
		}
		lines = append(lines, line)
	}
	return lines
}

func clientLines(clients []models.Client) []string {
	lines := make([]string, 0, len(clients))
	for _, c := range clients {
		name := c.Hostname
		if name == "" {
			name = c.MAC
		}
		conn := "wireless"
		detail := c.SSID
		if c.Wired {
			conn = "wired"
			detail = c.Network
		}
		line := fmt.Sprintf("%s (%s) - %s", name, c.IP, conn)
		if detail != "" {
			line += " on " + detail
		}
		lines = append(lines, line)
	}
	return lines
}

func deviceLines(devices []models.Device) []string {
	lines := make([]string, 0, len(devices))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = d.ID
		}
		line := fmt.Sprintf("%s [%s] - %s", name, d.Model, d.Status)
		if d.IP != "" {
			line += " at " + d.IP
		}
		lines = append(lines, line)
	}
	return lines
}

// portLines joins port entries against port-profile names so the model can
// answer "what is plugged into the IoT profile ports" style questions.
func portLines(devices []models.Device, profiles []models.PortProfile) []string {
	profileNames := make(map[string]string, len(profiles))
	for _, p := range profiles {
		profileNames[p.ID] = p.Name
	}

	var lines []string
	for _, d := range devices {
		for _, p := range d.Ports {
			state := "down"
			if p.Up {
				state = fmt.Sprintf("up %dMbps", p.SpeedMbps)
			}
			line := fmt.Sprintf("%s port %d", d.Name, p.Index)
			if p.Name != "" {
				line += " (" + p.Name + ")"
			}
			line += ": " + state
			if profile := profileNames[p.ProfileID]; profile != "" {
				line += ", profile " + profile
			}
			if p.RxErrors > 0 || p.TxErrors > 0 {
				line += fmt.Sprintf(", errors rx=%d tx=%d", p.RxErrors, p.TxErrors)
			}
			lines = append(lines, line)
		}
	}
	return lines
}

// rollupLines counts clients per uplink device, in device-list order so the
// output is deterministic.
func rollupLines(devices []models.Device, clients []models.Client) []string {
	counts := make(map[string]int)
	for _, c := range clients {
		if c.UplinkMAC != "" {
			counts[strings.ToLower(c.UplinkMAC)]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	var lines []string
	seen := make(map[string]bool)
	for _, d := range devices {
		mac := strings.ToLower(d.MAC)
		if n := counts[mac]; n > 0 {
			lines = append(lines, fmt.Sprintf("%s: %d clients", d.Name, n))
			seen[mac] = true
		}
	}

	// Uplinks that matched no known device still get counted, sorted for
	// deterministic output.
	var unknown []string
	for mac := range counts {
		if !seen[mac] {
			unknown = append(unknown, mac)
		}
	}
	sort.Strings(unknown)
	for _, mac := range unknown {
		lines = append(lines, fmt.Sprintf("unknown device %s: %d clients", mac, counts[mac]))
	}
	return lines
}

func networkLines(nets []models.Network) []string {
	lines := make([]string, 0, len(nets))
	for _, n := range nets {
		line := n.Name
		if n.VLAN > 0 {
			line += fmt.Sprintf(" (VLAN %d)", n.VLAN)
		}
		if n.Subnet != "" {
			line += " " + n.Subnet
		}
		if n.Purpose != "" {
			line += " - " + n.Purpose
		}
		if !n.Enabled {
			line += " [disabled]"
		}
		lines = append(lines, line)
	}
	return lines
}

func wlanLines(wlans []models.WLAN) []string {
	lines := make([]string, 0, len(wlans))
	for _, w := range wlans {
		line := w.Name
		if w.Security != "" {
			line += " (" + w.Security + ")"
		}
		if w.Guest {
			line += " [guest]"
		}
		if !w.Enabled {
			line += " [disabled]"
		}
		lines = append(lines, line)
	}
	return lines
}

func alarmLines(alarms []models.Event) []string {
	return eventLines(alarms)
}

func profileLines(profiles []models.PortProfile) []string {
	lines := make([]string, 0, len(profiles))
	for _, p := range profiles {
		lines = append(lines, p.Name)
	}
	return lines
}

func healthLines(health []models.SiteHealth) []string {
	lines := make([]string, 0, len(health))
	for _, h := range health {
		line := fmt.Sprintf("%s: %s", h.Subsystem, h.Status)
		if h.WANIP != "" {
			line += ", WAN IP " + h.WANIP
		}
		if h.ISPName != "" {
			line += " (" + h.ISPName + ")"
		}
		if h.NumUser > 0 {
			line += fmt.Sprintf(", %d users", h.NumUser)
		}
		if h.Latency > 0 {
			line += fmt.Sprintf(", latency %dms", h.Latency)
		}
		lines = append(lines, line)
	}
	return lines
}

func forwardLines(forwards []models.PortForward) []string {
	lines := make([]string, 0, len(forwards))
	for _, f := range forwards {
		line := fmt.Sprintf("%s: %s %s -> %s:%s", f.Name, f.Proto, f.DstPort, f.DstIP, f.FwdPort)
		if !f.Enabled {
			line += " [disabled]"
		}
		lines = append(lines, line)
	}
	return lines
}

func routeLines(routes []models.Route) []string {
	lines := make([]string, 0, len(routes))
	for _, r := range routes {
		line := fmt.Sprintf("%s via %s", r.Destination, r.Nexthop)
		if r.Interface != "" {
			line += " dev " + r.Interface
		}
		if r.Name != "" {
			line = r.Name + ": " + line
		}
		if r.Static {
			line += " [static]"
		}
		lines = append(lines, line)
	}
	return lines
}
