package storage

import (
	"database/sql"

	"github.com/lotas/tabgenius/internal/decide"
	"github.com/lotas/tabgenius/internal/types"
)

// Store binds the settings and history functions to one database for the
// engine and the control surface.
type Store struct {
	db *sql.DB
}

// NewStore wraps db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Preferences() (types.Preferences, error) {
	return GetPreferences(s.db)
}

func (s *Store) SetPreference(key, value string) error {
	return SetSetting(s.db, key, value)
}

// ActiveConfig returns the config of the selected provider.
func (s *Store) ActiveConfig() (decide.Config, error) {
	kind, err := GetActiveProvider(s.db)
	if err != nil {
		return nil, err
	}
	return GetProviderConfig(s.db, kind)
}

func (s *Store) SaveProviderConfig(cfg decide.Config) error {
	return SaveProviderConfig(s.db, cfg)
}

func (s *Store) RecordPlacement(p Placement) error {
	return RecordPlacement(s.db, p)
}
