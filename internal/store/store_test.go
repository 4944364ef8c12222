package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meetsolis-client/internal/layout"
	"meetsolis-client/internal/media"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadLayoutEmpty(t *testing.T) {
	s := openTestStore(t)

	cfg, err := s.LoadLayout()
	require.NoError(t, err)
	require.Nil(t, cfg)
}

func TestSaveAndLoadLayout(t *testing.T) {
	s := openTestStore(t)

	cfg := layout.DefaultConfig()
	cfg.PinnedParticipantID = "user-7"
	cfg.HideNoVideo = true
	cfg.SelfView.Position = layout.Position{X: 40, Y: 60}

	require.NoError(t, s.SaveLayout(cfg))

	loaded, err := s.LoadLayout()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "user-7", loaded.PinnedParticipantID)
	require.True(t, loaded.HideNoVideo)
	require.Equal(t, 40, loaded.SelfView.Position.X)
}

func TestSaveLayoutOverwrites(t *testing.T) {
	s := openTestStore(t)

	cfg := layout.DefaultConfig()
	cfg.PinnedParticipantID = "first"
	require.NoError(t, s.SaveLayout(cfg))

	cfg.PinnedParticipantID = "second"
	require.NoError(t, s.SaveLayout(cfg))

	loaded, err := s.LoadLayout()
	require.NoError(t, err)
	require.Equal(t, "second", loaded.PinnedParticipantID)
}

func TestLoadPreferencesEmpty(t *testing.T) {
	s := openTestStore(t)

	prefs, err := s.LoadPreferences()
	require.NoError(t, err)
	require.Nil(t, prefs)
}

func TestSaveAndLoadPreferences(t *testing.T) {
	s := openTestStore(t)

	updated := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SavePreferences(media.Preferences{
		CameraID:     "cam-1",
		MicrophoneID: "mic-2",
		SpeakerID:    "spk-3",
		LastUpdated:  updated,
	}))

	prefs, err := s.LoadPreferences()
	require.NoError(t, err)
	require.NotNil(t, prefs)
	require.Equal(t, "cam-1", prefs.CameraID)
	require.Equal(t, "mic-2", prefs.MicrophoneID)
	require.Equal(t, "spk-3", prefs.SpeakerID)
	require.True(t, updated.Equal(prefs.LastUpdated))
}

func TestResetPreferences(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SavePreferences(media.Preferences{CameraID: "cam-1"}))
	require.NoError(t, s.ResetPreferences())

	prefs, err := s.LoadPreferences()
	require.NoError(t, err)
	require.Nil(t, prefs)
}

func TestStoreFeedsLayoutStore(t *testing.T) {
	s := openTestStore(t)

	first := layout.NewStore(s)
	first.SetPinnedParticipant("user-9")
	first.SetHideNoVideo(true)

	second := layout.NewStore(s)
	cfg := second.Get()
	require.Equal(t, "user-9", cfg.PinnedParticipantID)
	require.True(t, cfg.HideNoVideo)
}
