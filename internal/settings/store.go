package settings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HerbHall/netsage/pkg/models"
	"github.com/HerbHall/netsage/pkg/plugin"
)

// migrations defines the settings plugin's schema history.
var migrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create controllers and cloud_config tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE settings_controllers (
					id          TEXT PRIMARY KEY,
					name        TEXT NOT NULL,
					enabled     INTEGER NOT NULL DEFAULT 1,
					base_url    TEXT NOT NULL,
					api_key     TEXT NOT NULL DEFAULT '',
					site        TEXT NOT NULL DEFAULT 'default',
					verify_ssl  INTEGER NOT NULL DEFAULT 0,
					position    INTEGER NOT NULL DEFAULT 0,
					created_at  TEXT NOT NULL,
					updated_at  TEXT NOT NULL
				);
				CREATE TABLE settings_cloud (
					id          INTEGER PRIMARY KEY CHECK (id = 1),
					enabled     INTEGER NOT NULL DEFAULT 0,
					api_key     TEXT NOT NULL DEFAULT '',
					base_url    TEXT NOT NULL DEFAULT '',
					updated_at  TEXT NOT NULL
				);
			`)
			return err
		},
	},
}

// repository persists monitoring source configuration in the shared store.
type repository struct {
	store plugin.Store
}

// ListControllers returns all controllers ordered by position, then ID.
func (r *repository) ListControllers(ctx context.Context) ([]models.ControllerConfig, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT id, name, enabled, base_url, api_key, site, verify_ssl
		FROM settings_controllers
		ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("list controllers: %w", err)
	}
	defer rows.Close()

	var out []models.ControllerConfig
	for rows.Next() {
		var c models.ControllerConfig
		if err := rows.Scan(&c.ID, &c.Name, &c.Enabled, &c.BaseURL, &c.APIKey, &c.Site, &c.VerifySSL); err != nil {
			return nil, fmt.Errorf("scan controller: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetController returns a single controller by ID.
// Returns sql.ErrNoRows when the ID is unknown.
func (r *repository) GetController(ctx context.Context, id string) (models.ControllerConfig, error) {
	var c models.ControllerConfig
	err := r.store.DB().QueryRowContext(ctx, `
		SELECT id, name, enabled, base_url, api_key, site, verify_ssl
		FROM settings_controllers WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Enabled, &c.BaseURL, &c.APIKey, &c.Site, &c.VerifySSL)
	return c, err
}

// UpsertController inserts or replaces a controller. New controllers are
// appended after the existing ones; updates keep their position.
func (r *repository) UpsertController(ctx context.Context, c models.ControllerConfig) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return r.store.Tx(ctx, func(tx *sql.Tx) error {
		var pos int
		var created string
		err := tx.QueryRowContext(ctx,
			`SELECT position, created_at FROM settings_controllers WHERE id = ?`, c.ID).
			Scan(&pos, &created)
		switch {
		case err == sql.ErrNoRows:
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(position), -1) + 1 FROM settings_controllers`).Scan(&pos); err != nil {
				return fmt.Errorf("next position: %w", err)
			}
			created = now
		case err != nil:
			return fmt.Errorf("lookup controller %q: %w", c.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO settings_controllers
				(id, name, enabled, base_url, api_key, site, verify_ssl, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Enabled, c.BaseURL, c.APIKey, c.Site, c.VerifySSL, pos, created, now)
		if err != nil {
			return fmt.Errorf("upsert controller %q: %w", c.ID, err)
		}
		return nil
	})
}

// DeleteController removes a controller. Reports whether a row was deleted.
func (r *repository) DeleteController(ctx context.Context, id string) (bool, error) {
	res, err := r.store.DB().ExecContext(ctx,
		`DELETE FROM settings_controllers WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete controller %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetCloud returns the cloud fleet configuration. A missing row yields the
// zero value (disabled, no key).
func (r *repository) GetCloud(ctx context.Context) (models.CloudConfig, error) {
	var c models.CloudConfig
	err := r.store.DB().QueryRowContext(ctx,
		`SELECT enabled, api_key, base_url FROM settings_cloud WHERE id = 1`).
		Scan(&c.Enabled, &c.APIKey, &c.BaseURL)
	if err == sql.ErrNoRows {
		return models.CloudConfig{}, nil
	}
	if err != nil {
		return models.CloudConfig{}, fmt.Errorf("get cloud config: %w", err)
	}
	return c, nil
}

// PutCloud replaces the cloud fleet configuration.
func (r *repository) PutCloud(ctx context.Context, c models.CloudConfig) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO settings_cloud (id, enabled, api_key, base_url, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			enabled = excluded.enabled,
			api_key = excluded.api_key,
			base_url = excluded.base_url,
			updated_at = excluded.updated_at`,
		c.Enabled, c.APIKey, c.BaseURL, now)
	if err != nil {
		return fmt.Errorf("put cloud config: %w", err)
	}
	return nil
}
