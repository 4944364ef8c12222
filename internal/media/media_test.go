package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"meetsolis-client/config"
)

type fakeTrack struct {
	mu       sync.Mutex
	id       string
	kind     TrackKind
	deviceID string
	enabled  bool
	stopped  bool
}

func newFakeTrack(kind TrackKind, deviceID string) *fakeTrack {
	return &fakeTrack{id: uuid.NewString(), kind: kind, deviceID: deviceID, enabled: true}
}

func (t *fakeTrack) ID() string         { return t.id }
func (t *fakeTrack) Kind() TrackKind    { return t.kind }
func (t *fakeTrack) DeviceID() string   { return t.deviceID }
func (t *fakeTrack) Enabled() bool      { t.mu.Lock(); defer t.mu.Unlock(); return t.enabled }
func (t *fakeTrack) SetEnabled(on bool) { t.mu.Lock(); t.enabled = on; t.mu.Unlock() }
func (t *fakeTrack) Stop()              { t.mu.Lock(); t.stopped = true; t.mu.Unlock() }

func (t *fakeTrack) Stopped() bool { t.mu.Lock(); defer t.mu.Unlock(); return t.stopped }

type fakeProvider struct {
	mu         sync.Mutex
	devices    []Device
	enumErr    error
	acquireErr error
	acquired   []*fakeTrack
	changeFns  []func()
}

func (p *fakeProvider) EnumerateDevices(context.Context) ([]Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enumErr != nil {
		return nil, p.enumErr
	}
	return append([]Device{}, p.devices...), nil
}

func (p *fakeProvider) AcquireTracks(_ context.Context, c Constraints) ([]Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	var out []Track
	if c.Audio {
		t := newFakeTrack(TrackAudio, c.AudioDeviceID)
		p.acquired = append(p.acquired, t)
		out = append(out, t)
	}
	if c.Video {
		t := newFakeTrack(TrackVideo, c.VideoDeviceID)
		p.acquired = append(p.acquired, t)
		out = append(out, t)
	}
	return out, nil
}

func (p *fakeProvider) OnDeviceChange(fn func()) func() {
	p.mu.Lock()
	p.changeFns = append(p.changeFns, fn)
	p.mu.Unlock()
	return func() {}
}

func (p *fakeProvider) firePlug() {
	p.mu.Lock()
	fns := append([]func(){}, p.changeFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type memPrefStore struct {
	mu    sync.Mutex
	saved *Preferences
	fail  bool
}

func (s *memPrefStore) SavePreferences(p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	cp := p
	s.saved = &cp
	return nil
}

func (s *memPrefStore) LoadPreferences() (*Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved, nil
}

func TestRegistryDefaultSelection(t *testing.T) {
	p := &fakeProvider{devices: []Device{
		{DeviceID: "cam1", Kind: KindCamera},
		{DeviceID: "cam2", Kind: KindCamera},
		{DeviceID: "mic1", Kind: KindMicrophone},
		{DeviceID: "spk1", Kind: KindSpeaker},
	}}
	r := NewDeviceRegistry(p, nil)
	require.NoError(t, r.Start(context.Background()))

	prefs := r.Preferences()
	require.Equal(t, "cam1", prefs.CameraID, "first device wins as default")
	require.Equal(t, "mic1", prefs.MicrophoneID)
	require.Equal(t, "spk1", prefs.SpeakerID)
}

func TestRegistryKeepsListsOnEnumerationFailure(t *testing.T) {
	p := &fakeProvider{devices: []Device{{DeviceID: "cam1", Kind: KindCamera}}}
	r := NewDeviceRegistry(p, nil)
	require.NoError(t, r.Start(context.Background()))

	p.mu.Lock()
	p.enumErr = errors.New("enumeration blocked")
	p.mu.Unlock()

	require.Error(t, r.Refresh(context.Background()))
	cams, _, _ := r.Devices()
	require.Len(t, cams, 1, "previous lists survive a failed refresh")
}

func TestRefreshErrorCarriesCaptureCode(t *testing.T) {
	p := &fakeProvider{enumErr: errors.New("backend gone")}
	r := NewDeviceRegistry(p, nil)

	err := r.Refresh(context.Background())
	require.ErrorIs(t, err, ErrStream, "raw provider errors are wrapped with a taxonomy code")

	// Providers that already speak the taxonomy pass through unchanged.
	p.mu.Lock()
	p.enumErr = NewCaptureError(ErrPermissionDenied, errors.New("denied"))
	p.mu.Unlock()

	err = r.Refresh(context.Background())
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.NotErrorIs(t, err, ErrStream)
}

func TestRegistryHotPlugReenumerates(t *testing.T) {
	p := &fakeProvider{devices: []Device{{DeviceID: "cam1", Kind: KindCamera}}}
	r := NewDeviceRegistry(p, nil)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	p.mu.Lock()
	p.devices = append(p.devices, Device{DeviceID: "cam2", Kind: KindCamera})
	p.mu.Unlock()
	p.firePlug()

	require.Eventually(t, func() bool {
		cams, _, _ := r.Devices()
		return len(cams) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSavePreferencesMergesAndSwallowsStorageFailure(t *testing.T) {
	store := &memPrefStore{fail: true}
	r := NewDeviceRegistry(&fakeProvider{}, store)

	cam := "cam9"
	require.NotPanics(t, func() {
		r.SavePreferences(PreferenceUpdate{CameraID: &cam})
	})

	prefs := r.Preferences()
	require.Equal(t, "cam9", prefs.CameraID)
	require.False(t, prefs.LastUpdated.IsZero())
}

func TestRequestPermissionReleasesProbeTracks(t *testing.T) {
	p := &fakeProvider{}
	r := NewDeviceRegistry(p, nil)
	require.NoError(t, r.RequestPermission(context.Background()))
	require.True(t, r.PermissionGranted())

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tr := range p.acquired {
		require.True(t, tr.Stopped())
	}
}

func TestNormalizeLevelClamps(t *testing.T) {
	require.Zero(t, NormalizeLevel(nil))

	flat := make([]byte, 32)
	require.Zero(t, NormalizeLevel(flat))

	loud := make([]byte, 32)
	for i := range loud {
		loud[i] = 255
	}
	require.Equal(t, float64(100), NormalizeLevel(loud))

	mid := make([]byte, 32)
	for i := range mid {
		mid[i] = 64
	}
	require.InDelta(t, 50, NormalizeLevel(mid), 0.01)
}

type fakeAnalyser struct {
	value  byte
	closed bool
}

func (a *fakeAnalyser) FrequencyData(buf []byte) int {
	for i := range buf {
		buf[i] = a.value
	}
	return len(buf)
}

func (a *fakeAnalyser) Close() error {
	a.closed = true
	return nil
}

func TestLevelMonitorSamplesOnFrames(t *testing.T) {
	mock := clock.NewMock()
	a := &fakeAnalyser{value: 128}
	m := NewLevelMonitorWithClock(func(Track) (Analyser, error) { return a, nil }, mock)

	m.StartMonitoring(newFakeTrack(TrackAudio, "mic1"))
	require.True(t, m.IsMonitoring())

	require.Eventually(t, func() bool {
		mock.Add(frameInterval)
		return m.Level() == 100
	}, time.Second, time.Millisecond)

	m.StopMonitoring()
	require.False(t, m.IsMonitoring())
	require.Zero(t, m.Level())
	require.True(t, a.closed, "audio graph must be released")
}

func TestLevelMonitorFactoryFailureIsNonFatal(t *testing.T) {
	m := NewLevelMonitor(func(Track) (Analyser, error) {
		return nil, errors.New("audio context disallowed")
	})

	require.NotPanics(t, func() {
		m.StartMonitoring(newFakeTrack(TrackAudio, "mic1"))
	})
	require.False(t, m.IsMonitoring())
}

func TestLevelMonitorNilTrackStops(t *testing.T) {
	a := &fakeAnalyser{value: 200}
	m := NewLevelMonitor(func(Track) (Analyser, error) { return a, nil })

	m.StartMonitoring(newFakeTrack(TrackAudio, "mic1"))
	m.SwapTrack(nil)
	require.False(t, m.IsMonitoring())
	require.Zero(t, m.Level())
}

func mediaCfg(autoMute bool) config.MediaConfig {
	return config.MediaConfig{
		VideoQuality:   "hd",
		AudioQuality:   "standard",
		AutoMuteOnJoin: autoMute,
	}
}

func TestAutoMuteOnJoinAppliedOncePerAcquisition(t *testing.T) {
	p := &fakeProvider{}
	c := NewLocalController(p, mediaCfg(true))

	require.NoError(t, c.Acquire(context.Background(), "mic1", "cam1"))
	require.False(t, c.AudioEnabled(), "audio starts muted under autoMuteOnJoin")

	// The policy does not fight a later explicit unmute.
	require.True(t, c.ToggleAudio())
	require.True(t, c.AudioEnabled())

	// But a fresh acquisition applies it again.
	require.NoError(t, c.Acquire(context.Background(), "mic1", "cam1"))
	require.False(t, c.AudioEnabled())
}

func TestToggleFlipsWithoutReacquisition(t *testing.T) {
	p := &fakeProvider{}
	c := NewLocalController(p, mediaCfg(false))
	require.NoError(t, c.Acquire(context.Background(), "mic1", "cam1"))

	before := len(p.acquired)
	require.False(t, c.ToggleVideo())
	require.True(t, c.ToggleVideo())
	p.mu.Lock()
	after := len(p.acquired)
	p.mu.Unlock()
	require.Equal(t, before, after, "toggles never reacquire tracks")
}

func TestReplaceTrackSplicesAndCarriesEnabledState(t *testing.T) {
	p := &fakeProvider{}
	c := NewLocalController(p, mediaCfg(false))
	require.NoError(t, c.Acquire(context.Background(), "mic1", "cam1"))

	c.SetAudioEnabled(false)
	old := c.AudioTrack().(*fakeTrack)

	require.NoError(t, c.ReplaceTrack(context.Background(), TrackAudio, "mic2"))

	replaced := c.AudioTrack().(*fakeTrack)
	require.NotEqual(t, old.ID(), replaced.ID())
	require.Equal(t, "mic2", replaced.DeviceID())
	require.True(t, old.Stopped(), "old track is stopped")
	require.False(t, replaced.Enabled(), "mute state carries across the swap")
	require.NotNil(t, c.VideoTrack(), "other kind untouched")
}

func TestStopReleasesAllTracks(t *testing.T) {
	p := &fakeProvider{}
	c := NewLocalController(p, mediaCfg(false))
	require.NoError(t, c.Acquire(context.Background(), "mic1", "cam1"))

	audio := c.AudioTrack().(*fakeTrack)
	video := c.VideoTrack().(*fakeTrack)
	c.Stop()

	require.True(t, audio.Stopped())
	require.True(t, video.Stopped())
	require.False(t, c.Acquired())
}

func TestAcquireErrorCodes(t *testing.T) {
	p := &fakeProvider{acquireErr: NewCaptureError(ErrPermissionDenied, errors.New("denied by user"))}
	c := NewLocalController(p, mediaCfg(false))

	err := c.Acquire(context.Background(), "", "")
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.NotErrorIs(t, err, ErrDeviceNotFound)
}
