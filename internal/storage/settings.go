package storage

import (
	"context"
	"fmt"
	"strings"
)

const keyInstructions = "personal_instructions"

// Instructions returns the user's free-text classification preferences
// ("" when never set).
func (s *Store) Instructions(ctx context.Context) (string, error) {
	var v string
	err := s.db.GetContext(ctx, &v, `SELECT value FROM settings WHERE key = ?`, keyInstructions)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

// SetInstructions stores text; blank text clears the setting.
func (s *Store) SetInstructions(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, keyInstructions)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, keyInstructions, text)
	return err
}

// MonitoredStatus reports whether pkg is opted in. Unknown packages are not.
func (s *Store) MonitoredStatus(ctx context.Context, pkg string) (bool, error) {
	var enabled bool
	err := s.db.GetContext(ctx, &enabled, `SELECT enabled FROM monitored_apps WHERE package = ?`, pkg)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("monitored status %s: %w", pkg, err)
	}
	return enabled, nil
}

func (s *Store) MonitoredApps(ctx context.Context) ([]MonitoredApp, error) {
	var out []MonitoredApp
	if err := s.db.SelectContext(ctx, &out, `SELECT package, app_name, enabled FROM monitored_apps ORDER BY app_name ASC, package ASC`); err != nil {
		return nil, err
	}
	return out, nil
}

// SetMonitored upserts pkg. An empty appName keeps the stored one.
func (s *Store) SetMonitored(ctx context.Context, pkg, appName string, enabled bool) error {
	pkg = strings.TrimSpace(pkg)
	if pkg == "" {
		return fmt.Errorf("package must not be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitored_apps(package, app_name, enabled) VALUES (?, ?, ?)
		ON CONFLICT(package) DO UPDATE SET
			enabled = excluded.enabled,
			app_name = CASE WHEN excluded.app_name = '' THEN monitored_apps.app_name ELSE excluded.app_name END`,
		pkg, strings.TrimSpace(appName), enabled)
	return err
}
