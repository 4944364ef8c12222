// Package layout implements the meeting-layout decision engine: the shared
// layout configuration store, view-mode selection, main-speaker resolution,
// gallery grid shaping with pagination, and the floating self-view geometry.
package layout

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// SelfViewSize is one of the named self-view sizes the user can cycle
// through. Immersive and two-person modes use fixed override sizes that are
// not part of the cycle.
type SelfViewSize string

const (
	SelfViewSmall  SelfViewSize = "small"
	SelfViewMedium SelfViewSize = "medium"
	SelfViewLarge  SelfViewSize = "large"
)

// Position is an absolute viewport coordinate in pixels.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// IsOrigin reports whether the position is the (0,0) sentinel, which always
// means "needs default placement", never an intentional top-left placement.
func (p Position) IsOrigin() bool {
	return p.X == 0 && p.Y == 0
}

// SelfViewConfig holds the floating self-view window state.
type SelfViewConfig struct {
	Visible  bool         `json:"visible"`
	Position Position     `json:"position"`
	Size     SelfViewSize `json:"size"`
}

// Config is the single shared layout configuration read by every view.
// PinnedParticipantID is local-only; SpotlightParticipantID mirrors the
// host-controlled backend value and is synced to all clients.
type Config struct {
	PinnedParticipantID    string         `json:"pinnedParticipantId"`
	SpotlightParticipantID string         `json:"spotlightParticipantId"`
	SelfView               SelfViewConfig `json:"selfView"`
	ImmersiveMode          bool           `json:"immersiveMode"`
	MaxTilesVisible        int            `json:"maxTilesVisible"`
	HideNoVideo            bool           `json:"hideNoVideo"`
}

// DefaultConfig returns the layout configuration used before any persisted
// state is loaded.
func DefaultConfig() Config {
	return Config{
		SelfView: SelfViewConfig{
			Visible: true,
			Size:    SelfViewMedium,
		},
		MaxTilesVisible: 16,
	}
}

// Persister stores the layout configuration across restarts. Save failures
// are logged and swallowed: persistence is best-effort and must never break
// a live call.
type Persister interface {
	SaveLayout(cfg Config) error
	LoadLayout() (*Config, error)
}

// SpotlightWriter performs the backend write that makes a spotlight change
// authoritative for every client. The id is the participant database id, or
// empty to clear.
type SpotlightWriter interface {
	SetSpotlight(ctx context.Context, participantDbID string) error
}

// Store is the injected, process-wide layout configuration store. All
// setters perform a field-scoped shallow merge so unrelated concurrent
// updates never clobber each other, and persist after each change.
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	persist Persister
	subs    []func(Config)
}

// NewStore builds a Store seeded from persisted state when available.
func NewStore(persist Persister) *Store {
	s := &Store{
		cfg:     DefaultConfig(),
		persist: persist,
	}
	if persist != nil {
		saved, err := persist.LoadLayout()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load persisted layout config")
		} else if saved != nil {
			if saved.MaxTilesVisible <= 0 {
				saved.MaxTilesVisible = DefaultConfig().MaxTilesVisible
			}
			if saved.SelfView.Size == "" {
				saved.SelfView.Size = SelfViewMedium
			}
			s.cfg = *saved
		}
	}
	return s
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Subscribe registers a callback invoked with the new configuration after
// every committed change.
func (s *Store) Subscribe(fn func(Config)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// SetPinnedParticipant pins the given user locally. Pinning an already
// pinned user clears the pin.
func (s *Store) SetPinnedParticipant(userID string) {
	s.update(func(c *Config) {
		if c.PinnedParticipantID == userID {
			c.PinnedParticipantID = ""
			return
		}
		c.PinnedParticipantID = userID
	})
}

// ApplySpotlight sets the locally-known spotlight value. It is called after
// a successful backend write, or when a realtime meeting change reports a
// new authoritative value.
func (s *Store) ApplySpotlight(userID string) {
	s.update(func(c *Config) {
		c.SpotlightParticipantID = userID
	})
}

// SetImmersiveMode toggles immersive mode.
func (s *Store) SetImmersiveMode(on bool) {
	s.update(func(c *Config) {
		c.ImmersiveMode = on
	})
}

// SetHideNoVideo toggles the hide-participants-without-video filter.
func (s *Store) SetHideNoVideo(on bool) {
	s.update(func(c *Config) {
		c.HideNoVideo = on
	})
}

// SetMaxTilesVisible sets the gallery page size. Non-positive values are
// ignored.
func (s *Store) SetMaxTilesVisible(n int) {
	if n <= 0 {
		return
	}
	s.update(func(c *Config) {
		c.MaxTilesVisible = n
	})
}

// SetSelfViewVisible shows or hides the self-view window.
func (s *Store) SetSelfViewVisible(visible bool) {
	s.update(func(c *Config) {
		c.SelfView.Visible = visible
	})
}

// SetSelfViewPosition stores the self-view position.
func (s *Store) SetSelfViewPosition(pos Position) {
	s.update(func(c *Config) {
		c.SelfView.Position = pos
	})
}

// SetSelfViewSize stores the configured self-view size.
func (s *Store) SetSelfViewSize(size SelfViewSize) {
	s.update(func(c *Config) {
		c.SelfView.Size = size
	})
}

// CycleSelfViewSize advances small -> medium -> large -> small and returns
// the new size.
func (s *Store) CycleSelfViewSize() SelfViewSize {
	var next SelfViewSize
	s.update(func(c *Config) {
		switch c.SelfView.Size {
		case SelfViewSmall:
			next = SelfViewMedium
		case SelfViewMedium:
			next = SelfViewLarge
		default:
			next = SelfViewSmall
		}
		c.SelfView.Size = next
	})
	return next
}

func (s *Store) update(mutate func(*Config)) {
	s.mu.Lock()
	mutate(&s.cfg)
	cfg := s.cfg
	subs := make([]func(Config), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.SaveLayout(cfg); err != nil {
			log.Warn().Err(err).Msg("Failed to persist layout config")
		}
	}
	for _, fn := range subs {
		fn(cfg)
	}
}
