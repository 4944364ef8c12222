package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Preferences are the user's persisted device choices, keyed by kind.
type Preferences struct {
	CameraID     string    `json:"cameraId"`
	MicrophoneID string    `json:"microphoneId"`
	SpeakerID    string    `json:"speakerId"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// PreferenceUpdate is a partial preference change; nil fields are left
// untouched by the merge.
type PreferenceUpdate struct {
	CameraID     *string
	MicrophoneID *string
	SpeakerID    *string
}

// PreferenceStore persists device preferences.
type PreferenceStore interface {
	SavePreferences(p Preferences) error
	LoadPreferences() (*Preferences, error)
}

// DeviceRegistry enumerates capture devices, tracks the user's selection,
// and re-enumerates on hot-plug events. Device labels stay empty until a
// permission grant unlocks them, so lists are treated as potentially stale
// until RequestPermission has succeeded.
type DeviceRegistry struct {
	mu sync.RWMutex

	provider Provider
	prefs    Preferences
	store    PreferenceStore

	cameras     []Device
	microphones []Device
	speakers    []Device

	permissionGranted bool
	unsubscribe       func()
}

// NewDeviceRegistry builds a registry over the given provider, seeding
// preferences from the store when present.
func NewDeviceRegistry(provider Provider, store PreferenceStore) *DeviceRegistry {
	r := &DeviceRegistry{provider: provider, store: store}
	if store != nil {
		saved, err := store.LoadPreferences()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load device preferences")
		} else if saved != nil {
			r.prefs = *saved
		}
	}
	return r
}

// Start performs the initial enumeration and subscribes to hot-plug
// notifications. Enumeration failure is returned but leaves the registry
// usable with empty lists.
func (r *DeviceRegistry) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.unsubscribe == nil {
		r.unsubscribe = r.provider.OnDeviceChange(func() {
			if err := r.Refresh(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Device re-enumeration after hot-plug failed")
			}
		})
	}
	r.mu.Unlock()

	return r.Refresh(ctx)
}

// RequestPermission performs the initial audio+video grant that unlocks
// device labels, releasing the probe tracks immediately. Errors carry the
// capture taxonomy code.
func (r *DeviceRegistry) RequestPermission(ctx context.Context) error {
	tracks, err := r.provider.AcquireTracks(ctx, Constraints{Audio: true, Video: true})
	if err != nil {
		return err
	}
	for _, t := range tracks {
		t.Stop()
	}

	r.mu.Lock()
	r.permissionGranted = true
	r.mu.Unlock()

	// Labels only populate after the grant.
	return r.Refresh(ctx)
}

// PermissionGranted reports whether labels are trustworthy yet.
func (r *DeviceRegistry) PermissionGranted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.permissionGranted
}

// Refresh re-enumerates devices. On failure the previous lists are kept and
// the returned error carries a capture taxonomy code.
func (r *DeviceRegistry) Refresh(ctx context.Context) error {
	devices, err := r.provider.EnumerateDevices(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Device enumeration failed")
		var coded *CaptureError
		if errors.As(err, &coded) {
			return err
		}
		return NewCaptureError(ErrStream, err)
	}

	var cams, mics, outs []Device
	for _, d := range devices {
		switch d.Kind {
		case KindCamera:
			cams = append(cams, d)
		case KindMicrophone:
			mics = append(mics, d)
		case KindSpeaker:
			outs = append(outs, d)
		}
	}

	r.mu.Lock()
	r.cameras, r.microphones, r.speakers = cams, mics, outs
	r.applyDefaultsLocked()
	r.mu.Unlock()
	return nil
}

// Devices returns the last successfully enumerated lists.
func (r *DeviceRegistry) Devices() (cameras, microphones, speakers []Device) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Device{}, r.cameras...),
		append([]Device{}, r.microphones...),
		append([]Device{}, r.speakers...)
}

// Preferences returns the current (possibly defaulted) device selection.
func (r *DeviceRegistry) Preferences() Preferences {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prefs
}

// SavePreferences merges the partial update into the stored preferences and
// stamps LastUpdated. Storage failures are logged, never surfaced: the
// in-memory selection stays authoritative for the session.
func (r *DeviceRegistry) SavePreferences(update PreferenceUpdate) {
	r.mu.Lock()
	if update.CameraID != nil {
		r.prefs.CameraID = *update.CameraID
	}
	if update.MicrophoneID != nil {
		r.prefs.MicrophoneID = *update.MicrophoneID
	}
	if update.SpeakerID != nil {
		r.prefs.SpeakerID = *update.SpeakerID
	}
	r.prefs.LastUpdated = time.Now()
	prefs := r.prefs
	store := r.store
	r.mu.Unlock()

	if store == nil {
		return
	}
	if err := store.SavePreferences(prefs); err != nil {
		log.Warn().Err(err).Msg("Failed to persist device preferences")
	}
}

// Stop unsubscribes from hot-plug notifications.
func (r *DeviceRegistry) Stop() {
	r.mu.Lock()
	unsub := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// applyDefaultsLocked selects the first enumerated device of each kind when
// no preference exists, relying on the platform's stable list order.
func (r *DeviceRegistry) applyDefaultsLocked() {
	if r.prefs.CameraID == "" && len(r.cameras) > 0 {
		r.prefs.CameraID = r.cameras[0].DeviceID
	}
	if r.prefs.MicrophoneID == "" && len(r.microphones) > 0 {
		r.prefs.MicrophoneID = r.microphones[0].DeviceID
	}
	if r.prefs.SpeakerID == "" && len(r.speakers) > 0 {
		r.prefs.SpeakerID = r.speakers[0].DeviceID
	}
}
