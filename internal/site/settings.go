package site

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// CounterEnabledKey is the settings key for the people-counter feature flag.
const CounterEnabledKey = "counter.enabled"

// SettingsRepository is a small key/value store on the settings table.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a settings repository.
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the stored value for key, or ErrSettingNotFound.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying setting %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	return nil
}

// FeatureFlag exposes one boolean setting. When the key has never been
// written the configured default applies.
type FeatureFlag struct {
	repo     *SettingsRepository
	key      string
	fallback bool
	logger   Logger
}

// Logger is the logging surface FeatureFlag needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// NewFeatureFlag binds a boolean flag to key with the given default.
func NewFeatureFlag(repo *SettingsRepository, key string, fallback bool, logger Logger) *FeatureFlag {
	return &FeatureFlag{repo: repo, key: key, fallback: fallback, logger: logger}
}

// IsFeatureEnabled reports the flag. Read errors fall back to the default
// so a flaky database does not stop or start polling on its own.
func (f *FeatureFlag) IsFeatureEnabled(ctx context.Context) bool {
	value, err := f.repo.Get(ctx, f.key)
	if errors.Is(err, ErrSettingNotFound) {
		return f.fallback
	}
	if err != nil {
		f.logger.Warn("reading feature flag failed, using default", "key", f.key, "default", f.fallback, "error", err)
		return f.fallback
	}

	enabled, err := strconv.ParseBool(value)
	if err != nil {
		f.logger.Warn("feature flag is not a boolean, using default", "key", f.key, "value", value)
		return f.fallback
	}
	return enabled
}

// SetEnabled persists the flag.
func (f *FeatureFlag) SetEnabled(ctx context.Context, enabled bool) error {
	return f.repo.Set(ctx, f.key, strconv.FormatBool(enabled))
}
