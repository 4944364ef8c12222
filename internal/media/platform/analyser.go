package platform

import (
	"math/rand"
	"sync"

	"meetsolis-client/internal/media"
)

// NewAnalyser returns a level analyser for the track. Synthetic audio has
// no real signal, so the analyser emits a low noise floor with occasional
// bursts, enough for the speaking indicator and mic test to move.
func NewAnalyser(track media.Track) (media.Analyser, error) {
	if track == nil {
		return nil, media.ErrStream
	}
	return &syntheticAnalyser{track: track}, nil
}

type syntheticAnalyser struct {
	mu     sync.Mutex
	track  media.Track
	closed bool
}

func (a *syntheticAnalyser) FrequencyData(buf []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.track.Enabled() {
		for i := range buf {
			buf[i] = 0
		}
		return len(buf)
	}
	for i := range buf {
		buf[i] = byte(rand.Intn(24))
	}
	return len(buf)
}

func (a *syntheticAnalyser) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}
