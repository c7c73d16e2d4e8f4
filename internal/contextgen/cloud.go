package contextgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/HerbHall/netsage/pkg/fieldpath"
	"github.com/HerbHall/netsage/pkg/models"
)

// Candidate display-field keys for cloud entities. The cloud schema is not
// stable across account tiers, so every field resolves through an ordered
// candidate list instead of a fixed path.
var (
	cloudNameKeys   = []string{"name", "hostname", "displayName", "display_name", "desc", "description", "model"}
	cloudIDKeys     = []string{"id", "_id", "mac", "serial", "deviceId", "device_id"}
	cloudStatusKeys = []string{"status", "state", "connectionState", "connection_state"}
	cloudIPKeys     = []string{"ip", "ipAddress", "ip_address", "wanIp", "lastIp", "last_ip"}
	cloudTypeKeys   = []string{"type", "productLine", "product_line", "model", "kind"}
)

func appendCloudSections(b *strings.Builder, cloud *models.CloudResult) {
	if cloud == nil {
		return
	}
	if !cloud.Success {
		b.WriteString("=== Cloud Fleet ===\n")
		fmt.Fprintf(b, "Cloud fleet data unavailable: %s\n\n", cloud.Error)
		return
	}
	d := cloud.Data
	if d == nil {
		return
	}

	writeSection(b, "Cloud Sites", cloudEntityLines(d.Sites, cloudSiteLine), maxCloudLines)
	writeSection(b, "Cloud Clients", cloudEntityLines(d.Clients, cloudGenericLine), maxCloudLines)
	writeSection(b, "Cloud Devices", cloudEntityLines(d.Devices, cloudDeviceLine), maxCloudLines)
	writeSection(b, "Cloud Alerts", cloudEntityLines(d.Alerts, cloudAlertLine), maxCloudLines)
	writeSection(b, "Cloud Internet Health", cloudEntityLines(d.InternetHealth, cloudHealthLine), maxCloudLines)
	writeSection(b, "Cloud Events", cloudEntityLines(d.Events, cloudAlertLine), maxCloudLines)
	writeSection(b, "Cloud Networks", cloudEntityLines(d.Networks, cloudGenericLine), maxCloudLines)
	writeSection(b, "Cloud Wireless Networks", cloudEntityLines(d.WLANs, cloudGenericLine), maxCloudLines)
	writeSection(b, "Cloud Gateways", cloudEntityLines(d.Gateways, cloudDeviceLine), maxCloudLines)
	writeSection(b, "Cloud Traffic", cloudEntityLines(d.Traffic, cloudGenericLine), maxCloudLines)
	appendCloudAccount(b, d.Account)
}

func cloudEntityLines(rows []map[string]any, render func(map[string]any) string) []string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		if line := render(row); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func cloudSiteLine(row map[string]any) string {
	name := fieldpath.String(row, "name", "desc", "description", "meta.name")
	if name == "" {
		name = fieldpath.String(row, cloudIDKeys...)
	}
	if name == "" {
		return ""
	}
	line := name
	if n, ok := fieldpath.Number(row, "deviceCount", "device_count", "statistics.counts.totalDevice"); ok {
		line += fmt.Sprintf(" (%d devices)", int(n))
	}
	return line
}

func cloudDeviceLine(row map[string]any) string {
	name := fieldpath.String(row, cloudNameKeys...)
	if name == "" {
		name = fieldpath.String(row, cloudIDKeys...)
	}
	if name == "" {
		return ""
	}
	line := name
	if typ := fieldpath.String(row, cloudTypeKeys...); typ != "" && typ != name {
		line += " [" + typ + "]"
	}
	if status := fieldpath.String(row, cloudStatusKeys...); status != "" {
		line += " - " + status
	}
	if ip := fieldpath.String(row, cloudIPKeys...); ip != "" {
		line += " at " + ip
	}
	return line
}

func cloudAlertLine(row map[string]any) string {
	msg := fieldpath.String(row, "message", "msg", "title", "description", "key")
	if msg == "" {
		return ""
	}
	if sev := fieldpath.String(row, "severity", "level", "category"); sev != "" {
		return "[" + sev + "] " + msg
	}
	return msg
}

func cloudHealthLine(row map[string]any) string {
	name := fieldpath.String(row, "ispName", "isp_name", "name", "wanName", "period")
	line := name
	if lat, ok := fieldpath.Number(row, "latency", "avgLatency", "latencyAvgMs"); ok {
		line += fmt.Sprintf(" latency %.0fms", lat)
	}
	if down, ok := fieldpath.Number(row, "download", "downloadMbps", "download_kbps"); ok {
		line += fmt.Sprintf(" down %.0f", down)
	}
	if up, ok := fieldpath.Number(row, "upload", "uploadMbps", "upload_kbps"); ok {
		line += fmt.Sprintf(" up %.0f", up)
	}
	if strings.TrimSpace(line) == "" {
		return ""
	}
	return strings.TrimSpace(line)
}

func cloudGenericLine(row map[string]any) string {
	name := fieldpath.String(row, cloudNameKeys...)
	if name == "" {
		name = fieldpath.String(row, cloudIDKeys...)
	}
	if name == "" {
		return ""
	}
	line := name
	if status := fieldpath.String(row, cloudStatusKeys...); status != "" {
		line += " - " + status
	}
	if ip := fieldpath.String(row, cloudIPKeys...); ip != "" {
		line += " at " + ip
	}
	return line
}

// appendCloudAccount renders the flat scalar fields of the account object,
// key-sorted so output stays deterministic.
func appendCloudAccount(b *strings.Builder, account map[string]any) {
	if len(account) == 0 {
		return
	}

	keys := make([]string, 0, len(account))
	for k := range account {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		if v := fieldpath.Stringify(account[k]); v != "" {
			lines = append(lines, k+": "+v)
		}
	}
	writeSection(b, "Cloud Account", lines, maxCloudLines)
}
