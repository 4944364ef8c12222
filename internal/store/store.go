// Package store persists client state that must survive restarts: the
// layout configuration and the user's device preferences. Backing storage
// is a local sqlite file; both records are single-row tables updated with
// upserts.
package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"meetsolis-client/internal/layout"
	"meetsolis-client/internal/media"
)

const singletonID = 1

// LayoutRecord is the persisted layout configuration, stored as one JSON
// blob so the schema never chases the config shape.
type LayoutRecord struct {
	ID        int    `gorm:"primaryKey"`
	Data      string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (LayoutRecord) TableName() string {
	return "layout_state"
}

// PreferenceRecord is the persisted device selection.
type PreferenceRecord struct {
	ID           int `gorm:"primaryKey"`
	CameraID     string
	MicrophoneID string
	SpeakerID    string
	UpdatedAt    time.Time
}

func (PreferenceRecord) TableName() string {
	return "device_preferences"
}

// Store wraps the sqlite database and satisfies layout.Persister and
// media.PreferenceStore.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite file at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to open state database")
		return nil, err
	}
	if err := db.AutoMigrate(&LayoutRecord{}, &PreferenceRecord{}); err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Msg("State database opened")
	return &Store{db: db}, nil
}

// SaveLayout upserts the layout configuration.
func (s *Store) SaveLayout(cfg layout.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	rec := LayoutRecord{ID: singletonID, Data: string(data), UpdatedAt: time.Now()}
	return s.db.Save(&rec).Error
}

// LoadLayout returns the persisted layout configuration, or nil when none
// has been saved yet.
func (s *Store) LoadLayout() (*layout.Config, error) {
	var rec LayoutRecord
	result := s.db.First(&rec, "id = ?", singletonID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	var cfg layout.Config
	if err := json.Unmarshal([]byte(rec.Data), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SavePreferences upserts the device preferences.
func (s *Store) SavePreferences(p media.Preferences) error {
	rec := PreferenceRecord{
		ID:           singletonID,
		CameraID:     p.CameraID,
		MicrophoneID: p.MicrophoneID,
		SpeakerID:    p.SpeakerID,
		UpdatedAt:    p.LastUpdated,
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	return s.db.Save(&rec).Error
}

// LoadPreferences returns the persisted device preferences, or nil when none
// have been saved yet.
func (s *Store) LoadPreferences() (*media.Preferences, error) {
	var rec PreferenceRecord
	result := s.db.First(&rec, "id = ?", singletonID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &media.Preferences{
		CameraID:     rec.CameraID,
		MicrophoneID: rec.MicrophoneID,
		SpeakerID:    rec.SpeakerID,
		LastUpdated:  rec.UpdatedAt,
	}, nil
}

// ResetPreferences deletes the persisted device selection. Used by the
// maintenance CLI.
func (s *Store) ResetPreferences() error {
	return s.db.Delete(&PreferenceRecord{}, "id = ?", singletonID).Error
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
