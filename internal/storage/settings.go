package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lotas/tabgenius/internal/decide"
	"github.com/lotas/tabgenius/internal/types"
)

// Setting keys.
const (
	KeyProvider  = "provider"
	KeyGrouping  = "grouping"
	KeyAutoGroup = "autoGroup"
	KeySortOrder = "sortOrder"
)

// ErrInvalidSetting is returned for unknown keys or out-of-range values.
var ErrInvalidSetting = errors.New("invalid setting")

var allowedValues = map[string][]string{
	KeyProvider:  {string(decide.KindAzure), string(decide.KindSilicon)},
	KeyGrouping:  {types.GroupingAI, types.GroupingDomain, types.GroupingCancel},
	KeyAutoGroup: {types.AutoGroupAlways, types.AutoGroupDisable},
	KeySortOrder: {types.SortDesc, types.SortAsc, types.SortDisable},
}

// GetSetting returns the stored value for key, or "" and false if unset.
func GetSetting(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting validates and stores one setting.
func SetSetting(db *sql.DB, key, value string) error {
	allowed, ok := allowedValues[key]
	if !ok {
		return fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}
	valid := false
	for _, a := range allowed {
		if a == value {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s=%q", ErrInvalidSetting, key, value)
	}

	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// GetPreferences returns the grouping preferences. Unset preferences
// default to AI grouping with auto-grouping on.
func GetPreferences(db *sql.DB) (types.Preferences, error) {
	p := types.Preferences{
		Grouping:  types.GroupingAI,
		AutoGroup: types.AutoGroupAlways,
		SortOrder: types.SortDesc,
	}
	rows, err := db.Query("SELECT key, value FROM settings WHERE key IN (?, ?, ?)",
		KeyGrouping, KeyAutoGroup, KeySortOrder)
	if err != nil {
		return p, fmt.Errorf("get preferences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return p, fmt.Errorf("scan preference: %w", err)
		}
		switch k {
		case KeyGrouping:
			p.Grouping = v
		case KeyAutoGroup:
			p.AutoGroup = v
		case KeySortOrder:
			p.SortOrder = v
		}
	}
	return p, rows.Err()
}

// GetActiveProvider returns the selected provider, azure-openai if unset.
func GetActiveProvider(db *sql.DB) (decide.Kind, error) {
	v, ok, err := GetSetting(db, KeyProvider)
	if err != nil {
		return "", err
	}
	if !ok {
		return decide.KindAzure, nil
	}
	return decide.ParseKind(v)
}

// SetActiveProvider selects the provider used for AI grouping.
func SetActiveProvider(db *sql.DB, kind decide.Kind) error {
	return SetSetting(db, KeyProvider, string(kind))
}

// GetProviderConfig returns the stored config for kind, or
// decide.ErrConfigMissing if none has been saved.
func GetProviderConfig(db *sql.DB, kind decide.Kind) (decide.Config, error) {
	var data string
	err := db.QueryRow("SELECT config FROM provider_configs WHERE provider = ?", string(kind)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", decide.ErrConfigMissing, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s config: %w", kind, err)
	}
	return decide.UnmarshalConfig(kind, []byte(data))
}

// SaveProviderConfig stores cfg under its provider kind, replacing any
// previous config for that provider.
func SaveProviderConfig(db *sql.DB, cfg decide.Config) error {
	data, err := decide.MarshalConfig(cfg)
	if err != nil {
		return fmt.Errorf("encode %s config: %w", cfg.Kind(), err)
	}
	_, err = db.Exec(`
		INSERT INTO provider_configs (provider, config, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(provider) DO UPDATE SET config = excluded.config, updated_at = CURRENT_TIMESTAMP`,
		string(cfg.Kind()), string(data))
	if err != nil {
		return fmt.Errorf("save %s config: %w", cfg.Kind(), err)
	}
	return nil
}
