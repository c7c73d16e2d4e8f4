package unifi

import (
	"time"

	"github.com/HerbHall/netsage/pkg/fieldpath"
	"github.com/HerbHall/netsage/pkg/models"
)

// DefaultConnectionWindow bounds how far back a "recently connected" event
// may lie.
const DefaultConnectionWindow = 5 * time.Minute

// connectionEventKeys is the fixed set of controller event keys that count
// as a client connecting. Wireless/wired user and guest variants.
var connectionEventKeys = map[string]bool{
	"EVT_WU_Connected": true, // wireless user
	"EVT_WG_Connected": true, // wireless guest
	"EVT_LU_Connected": true, // LAN user
	"EVT_LG_Connected": true, // LAN guest
}

// normalizeEvents maps raw event/alarm/IPS rows into the generic event
// model. Controllers report timestamps in seconds or milliseconds depending
// on firmware; magnitude decides (anything above 1e12 is milliseconds).
func normalizeEvents(rows []map[string]any) []models.Event {
	events := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		e := models.Event{
			Key:     fieldpath.String(row, "key", "catname", "event_type"),
			Message: fieldpath.String(row, "msg", "message", "inner_alert_signature"),
			Host:    fieldpath.String(row, "hostname", "user", "client", "mac", "src_ip", "guest"),
		}
		if n, ok := fieldpath.Number(row, "time", "timestamp", "datetime"); ok {
			e.Timestamp = normalizeTimestamp(n)
		}
		if e.Message == "" && e.Key == "" {
			continue
		}
		events = append(events, e)
	}
	return events
}

// normalizeTimestamp converts a numeric epoch that may be seconds or
// milliseconds into a time.Time.
func normalizeTimestamp(n float64) time.Time {
	secs := int64(n)
	if n > 1e12 {
		secs = int64(n / 1000)
	}
	return time.Unix(secs, 0).UTC()
}

// FilterConnectionEvents returns the events that represent a client
// connecting within the window ending at now. A zero window applies
// DefaultConnectionWindow.
func FilterConnectionEvents(events []models.Event, now time.Time, window time.Duration) []models.Event {
	if window <= 0 {
		window = DefaultConnectionWindow
	}
	cutoff := now.Add(-window)

	recent := make([]models.Event, 0)
	for _, e := range events {
		if !connectionEventKeys[e.Key] {
			continue
		}
		if e.Timestamp.Before(cutoff) || e.Timestamp.After(now.Add(time.Minute)) {
			continue
		}
		recent = append(recent, e)
	}
	return recent
}
