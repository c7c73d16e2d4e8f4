package unifi

import (
	"context"
	"fmt"

	"github.com/HerbHall/netsage/pkg/fieldpath"
	"github.com/HerbHall/netsage/pkg/models"
)

// LookupClientByIP scans this controller's client list for an exact IP
// match, checking the plain IP, the fixed-IP assignment, and the nested
// network IP in that priority. On a hit it resolves the client's uplink
// device by MAC so the answer can say which switch or AP the client hangs
// off. Returns (nil, nil) when no client matches; errors mean the
// controller could not be queried at all.
func (c *Client) LookupClientByIP(ctx context.Context, ip string) (*models.ClientLocation, error) {
	rows, err := c.apiRequest(ctx, "stat/sta")
	if err != nil {
		return nil, fmt.Errorf("fetch clients for lookup: %w", err)
	}

	var match map[string]any
	for _, priority := range []string{"ip", "fixed_ip", "network.ip"} {
		for _, row := range rows {
			if fieldpath.String(row, priority) == ip {
				match = row
				break
			}
		}
		if match != nil {
			break
		}
	}
	if match == nil {
		return nil, nil
	}

	client := normalizeClient(match)
	loc := &models.ClientLocation{
		Client:     client,
		Controller: c.cfg.Name,
		Port:       client.UplinkPort,
	}

	if client.UplinkMAC != "" {
		// Best effort: a failed device fetch still yields a useful answer.
		if devices, derr := c.GetDevices(ctx); derr == nil {
			for _, d := range devices {
				if d.MAC == client.UplinkMAC {
					loc.Uplink = d.Name
					loc.UplinkType = d.Type
					break
				}
			}
		}
		if loc.Uplink == "" {
			loc.Uplink = client.UplinkMAC
		}
	}
	return loc, nil
}
