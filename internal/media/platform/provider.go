// Package platform is the concrete media surface for the headless agent.
// Without a desktop capture stack it synthesizes tracks: silence for audio
// and a test pattern for video. The embedding shell replaces this provider
// with a real one; everything above the media.Provider interface is
// unchanged when it does.
package platform

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"meetsolis-client/config"
	"meetsolis-client/internal/media"
)

// Provider synthesizes capture tracks and enumerates devices from the
// MEETSOLIS_DEVICES env override, falling back to one built-in pair.
type Provider struct {
	cfg config.MediaConfig

	mu        sync.Mutex
	listeners []func()
}

// NewProvider builds the synthetic provider.
func NewProvider(cfg config.MediaConfig) *Provider {
	return &Provider{cfg: cfg}
}

// EnumerateDevices lists the synthetic devices. MEETSOLIS_DEVICES can add
// extras as a comma-separated list of kind:id:label triples, which is how
// integration runs simulate hot-plug and multi-device setups.
func (p *Provider) EnumerateDevices(_ context.Context) ([]media.Device, error) {
	devices := []media.Device{
		{DeviceID: "synthetic-cam", Label: "Synthetic Camera", Kind: media.KindCamera},
		{DeviceID: "synthetic-mic", Label: "Synthetic Microphone", Kind: media.KindMicrophone},
		{DeviceID: "synthetic-spk", Label: "Synthetic Speaker", Kind: media.KindSpeaker},
	}

	extra := os.Getenv("MEETSOLIS_DEVICES")
	if extra == "" {
		return devices, nil
	}
	for _, entry := range strings.Split(extra, ",") {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			log.Warn().Str("entry", entry).Msg("Ignoring malformed device override")
			continue
		}
		devices = append(devices, media.Device{
			Kind:     media.DeviceKind(parts[0]),
			DeviceID: parts[1],
			Label:    parts[2],
		})
	}
	return devices, nil
}

// AcquireTracks opens synthetic tracks matching the constraints.
func (p *Provider) AcquireTracks(_ context.Context, c media.Constraints) ([]media.Track, error) {
	var tracks []media.Track
	if c.Audio {
		tracks = append(tracks, newSyntheticTrack(media.TrackAudio, c.AudioDeviceID, "synthetic-mic"))
	}
	if c.Video {
		tracks = append(tracks, newSyntheticTrack(media.TrackVideo, c.VideoDeviceID, "synthetic-cam"))
	}
	return tracks, nil
}

// OnDeviceChange registers a hot-plug callback. The synthetic provider
// never fires it; real providers do.
func (p *Provider) OnDeviceChange(fn func()) func() {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	idx := len(p.listeners) - 1
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.listeners[idx] = nil
		p.mu.Unlock()
	}
}

type syntheticTrack struct {
	mu       sync.Mutex
	id       string
	kind     media.TrackKind
	deviceID string
	enabled  bool
	stopped  bool
}

func newSyntheticTrack(kind media.TrackKind, deviceID, fallback string) *syntheticTrack {
	if deviceID == "" {
		deviceID = fallback
	}
	return &syntheticTrack{
		id:       uuid.New().String(),
		kind:     kind,
		deviceID: deviceID,
		enabled:  true,
	}
}

func (t *syntheticTrack) ID() string            { return t.id }
func (t *syntheticTrack) Kind() media.TrackKind { return t.kind }
func (t *syntheticTrack) DeviceID() string      { return t.deviceID }

func (t *syntheticTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled && !t.stopped
}

func (t *syntheticTrack) SetEnabled(on bool) {
	t.mu.Lock()
	t.enabled = on
	t.mu.Unlock()
}

func (t *syntheticTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}
