package media

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"meetsolis-client/config"
)

// LocalController owns the local camera and microphone tracks. Mute and
// camera-off are enabled-flag flips on the existing tracks, never a
// re-acquisition, and device hot-swap splices a single replacement track
// into the live set so downstream consumers keep their references.
type LocalController struct {
	mu sync.RWMutex

	provider Provider
	cfg      config.MediaConfig

	audio Track
	video Track

	acquired bool
}

// NewLocalController builds a controller with the configured capture
// policy.
func NewLocalController(provider Provider, cfg config.MediaConfig) *LocalController {
	return &LocalController{provider: provider, cfg: cfg}
}

// Acquire opens camera and microphone tracks under the configured quality
// constraints. When autoMuteOnJoin is set, audio tracks are force-disabled
// immediately after acquisition; this is a join-time policy applied exactly
// once per acquisition, not a toggle.
func (c *LocalController) Acquire(ctx context.Context, audioDeviceID, videoDeviceID string) error {
	tracks, err := c.provider.AcquireTracks(ctx, Constraints{
		Audio:            true,
		Video:            true,
		VideoQuality:     c.cfg.VideoQuality,
		AudioQuality:     c.cfg.AudioQuality,
		NoiseSuppression: c.cfg.NoiseSuppression,
		AudioDeviceID:    audioDeviceID,
		VideoDeviceID:    videoDeviceID,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked()
	for _, t := range tracks {
		switch t.Kind() {
		case TrackAudio:
			c.audio = t
		case TrackVideo:
			c.video = t
		}
	}
	if c.cfg.AutoMuteOnJoin && c.audio != nil {
		c.audio.SetEnabled(false)
	}
	c.acquired = true
	return nil
}

// ToggleAudio flips the microphone enabled flag and returns the new state.
func (c *LocalController) ToggleAudio() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audio == nil {
		return false
	}
	next := !c.audio.Enabled()
	c.audio.SetEnabled(next)
	return next
}

// ToggleVideo flips the camera enabled flag and returns the new state.
func (c *LocalController) ToggleVideo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video == nil {
		return false
	}
	next := !c.video.Enabled()
	c.video.SetEnabled(next)
	return next
}

// SetAudioEnabled sets the microphone state directly. Push-to-talk uses
// this with the current state read at call time.
func (c *LocalController) SetAudioEnabled(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audio != nil {
		c.audio.SetEnabled(on)
	}
}

// AudioEnabled reports the current microphone state.
func (c *LocalController) AudioEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.audio != nil && c.audio.Enabled()
}

// VideoEnabled reports the current camera state.
func (c *LocalController) VideoEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.video != nil && c.video.Enabled()
}

// AudioTrack returns the live microphone track, if any.
func (c *LocalController) AudioTrack() Track {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.audio
}

// VideoTrack returns the live camera track, if any.
func (c *LocalController) VideoTrack() Track {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.video
}

// ReplaceTrack swaps exactly one track in place: stop the old track,
// acquire a replacement bound to the given device, and splice it in. The
// enabled flag carries over so a muted participant stays muted through a
// device swap. No renegotiation is involved.
func (c *LocalController) ReplaceTrack(ctx context.Context, kind TrackKind, deviceID string) error {
	constraints := Constraints{
		VideoQuality:     c.cfg.VideoQuality,
		AudioQuality:     c.cfg.AudioQuality,
		NoiseSuppression: c.cfg.NoiseSuppression,
	}
	switch kind {
	case TrackAudio:
		constraints.Audio = true
		constraints.AudioDeviceID = deviceID
	case TrackVideo:
		constraints.Video = true
		constraints.VideoDeviceID = deviceID
	default:
		return NewCaptureError(ErrStream, nil)
	}

	tracks, err := c.provider.AcquireTracks(ctx, constraints)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return NewCaptureError(ErrDeviceNotFound, nil)
	}
	replacement := tracks[0]

	c.mu.Lock()
	defer c.mu.Unlock()

	var old Track
	switch kind {
	case TrackAudio:
		old = c.audio
		c.audio = replacement
	case TrackVideo:
		old = c.video
		c.video = replacement
	}
	if old != nil {
		replacement.SetEnabled(old.Enabled())
		old.Stop()
	}
	log.Debug().Str("kind", string(kind)).Str("device", deviceID).Msg("Replaced local track")
	return nil
}

// Stop releases every local track.
func (c *LocalController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
	c.acquired = false
}

// Restart is Stop followed by a fresh acquisition with the same devices the
// previous tracks were bound to.
func (c *LocalController) Restart(ctx context.Context) error {
	c.mu.Lock()
	var audioDev, videoDev string
	if c.audio != nil {
		audioDev = c.audio.DeviceID()
	}
	if c.video != nil {
		videoDev = c.video.DeviceID()
	}
	c.mu.Unlock()

	c.Stop()
	return c.Acquire(ctx, audioDev, videoDev)
}

// Acquired reports whether a live capture set exists.
func (c *LocalController) Acquired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.acquired
}

func (c *LocalController) releaseLocked() {
	if c.audio != nil {
		c.audio.Stop()
		c.audio = nil
	}
	if c.video != nil {
		c.video.Stop()
		c.video = nil
	}
}
