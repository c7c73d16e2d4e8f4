package assist

import (
	"context"

	"github.com/HerbHall/netsage/internal/unifi"
	"github.com/HerbHall/netsage/pkg/models"
	"go.uber.org/zap"
)

// fleetLocator searches all enabled controllers for a client IP, in
// configuration order. The first match wins.
type fleetLocator struct {
	configs []models.ControllerConfig
	logger  *zap.Logger
}

// newFleetLocator returns nil when no controller is enabled, so callers can
// leave the locator out entirely.
func newFleetLocator(controllers []models.ControllerConfig, logger *zap.Logger) *fleetLocator {
	var enabled []models.ControllerConfig
	for _, c := range controllers {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}
	if len(enabled) == 0 {
		return nil
	}
	return &fleetLocator{configs: enabled, logger: logger}
}

// LocateClient implements contextgen.ClientLocator. Controllers that cannot
// be queried are skipped; an error comes back only when every controller
// failed, so a clean miss stays distinguishable from an outage.
func (l *fleetLocator) LocateClient(ctx context.Context, ip string) (*models.ClientLocation, error) {
	var firstErr error
	queried := false
	for _, cfg := range l.configs {
		client := unifi.NewClient(cfg, l.logger)
		loc, err := client.LookupClientByIP(ctx, ip)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			l.logger.Debug("client lookup failed on controller",
				zap.String("controller", cfg.Name),
				zap.Error(err),
			)
			continue
		}
		queried = true
		if loc != nil {
			return loc, nil
		}
	}
	if !queried {
		return nil, firstErr
	}
	return nil, nil
}
