// Package scheduler runs the client's periodic jobs: the waiting-room count
// poll hosts fall back on and the roster re-sync used when the realtime
// channel is down.
package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
)

// Poller owns the background job scheduler for one call session.
type Poller struct {
	scheduler *gocron.Scheduler
}

// New builds a stopped Poller.
func New() *Poller {
	return &Poller{scheduler: gocron.NewScheduler(time.Local)}
}

// Every registers fn to run at the given interval under the given tag.
func (p *Poller) Every(interval time.Duration, tag string, fn func()) error {
	_, err := p.scheduler.Every(interval).Tag(tag).Do(fn)
	if err != nil {
		log.Error().Err(err).Str("job", tag).Msg("Failed to schedule job")
		return err
	}
	return nil
}

// Remove cancels the job registered under tag. Unknown tags are a no-op.
func (p *Poller) Remove(tag string) {
	_ = p.scheduler.RemoveByTag(tag)
}

// Start launches the scheduler in the background.
func (p *Poller) Start() {
	p.scheduler.StartAsync()
}

// Stop halts all jobs and waits for running ones to return.
func (p *Poller) Stop() {
	p.scheduler.Stop()
}
