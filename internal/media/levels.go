package media

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// frameInterval approximates an animation-frame cadence.
const frameInterval = 16 * time.Millisecond

// Analyser exposes frequency-domain samples for a live audio track.
type Analyser interface {
	// FrequencyData fills buf with byte magnitudes and returns the number
	// of bins written.
	FrequencyData(buf []byte) int
	Close() error
}

// AnalyserFactory builds an Analyser over a track. Construction can fail
// when the platform refuses another analysis graph.
type AnalyserFactory func(track Track) (Analyser, error)

// LevelMonitor samples an audio track on a frame loop and exposes a
// normalized 0-100 level. It is never started automatically; callers start
// sampling only while something (mic test, speaking indicator) consumes the
// level, since the loop costs CPU.
type LevelMonitor struct {
	mu sync.Mutex

	factory AnalyserFactory
	clock   clock.Clock

	track    Track
	analyser Analyser
	buf      []byte

	level      float64
	monitoring bool
	stop       chan struct{}
}

// NewLevelMonitor builds a monitor with the real clock.
func NewLevelMonitor(factory AnalyserFactory) *LevelMonitor {
	return NewLevelMonitorWithClock(factory, clock.New())
}

// NewLevelMonitorWithClock injects the frame scheduler for deterministic
// tests.
func NewLevelMonitorWithClock(factory AnalyserFactory, c clock.Clock) *LevelMonitor {
	return &LevelMonitor{
		factory: factory,
		clock:   c,
		buf:     make([]byte, 256),
	}
}

// StartMonitoring builds the analysis graph over the track and starts the
// sampling loop. A construction failure leaves monitoring off and is only
// logged; it must never propagate into a render path.
func (m *LevelMonitor) StartMonitoring(track Track) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()

	if track == nil {
		return
	}

	analyser, err := m.factory(track)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to build audio analyser, level monitoring disabled")
		m.monitoring = false
		return
	}

	m.track = track
	m.analyser = analyser
	m.monitoring = true
	m.stop = make(chan struct{})
	go m.loop(m.stop)
}

// SwapTrack rebuilds the analysis graph against a new track. A nil track
// stops monitoring and zeroes the level.
func (m *LevelMonitor) SwapTrack(track Track) {
	m.StartMonitoring(track)
}

// StopMonitoring halts the loop, releases the analysis graph, and zeroes
// the level.
func (m *LevelMonitor) StopMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

// Level returns the current normalized level in [0,100].
func (m *LevelMonitor) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// IsMonitoring reports whether the sampling loop is running.
func (m *LevelMonitor) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring
}

func (m *LevelMonitor) loop(stop chan struct{}) {
	ticker := m.clock.Ticker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *LevelMonitor) sample() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.analyser == nil {
		return
	}
	n := m.analyser.FrequencyData(m.buf)
	m.level = NormalizeLevel(m.buf[:n])
}

// teardownLocked releases the audio graph so OS-level audio resources are
// never leaked across track swaps or unmount.
func (m *LevelMonitor) teardownLocked() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	if m.analyser != nil {
		if err := m.analyser.Close(); err != nil {
			log.Debug().Err(err).Msg("Audio analyser close failed")
		}
		m.analyser = nil
	}
	m.track = nil
	m.monitoring = false
	m.level = 0
}

// NormalizeLevel computes RMS over the frequency bins and normalizes it to
// [0,100] as min(100, rms/128*100). The result is clamped even if the
// platform ever hands back out-of-range magnitudes.
func NormalizeLevel(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bins {
		v := float64(b)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(bins)))
	level := rms / 128 * 100
	if level > 100 {
		return 100
	}
	if level < 0 {
		return 0
	}
	return level
}
