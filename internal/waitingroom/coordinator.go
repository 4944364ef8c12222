// Package waitingroom drives both sides of the pre-admission workflow: the
// host's admit/reject panel and the joining participant's wait screen.
package waitingroom

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"meetsolis-client/internal/api"
	"meetsolis-client/internal/realtime"
)

// Backend is the REST surface the coordinators call.
type Backend interface {
	ListWaiting(ctx context.Context, meetingID string) ([]api.WaitingParticipant, error)
	Admit(ctx context.Context, meetingID, waitingID string) error
	Reject(ctx context.Context, meetingID, waitingID string) error
}

// HostPollInterval is the fixed-interval fallback when realtime is quiet.
const HostPollInterval = 5 * time.Second

// HostCoordinator maintains the host's view of the waiting list. Admit and
// reject remove optimistically; realtime (or the next poll) confirms. No
// automatic rollback on failure: the caller surfaces the rejected promise
// and the next refresh reconverges, matching the product behavior.
type HostCoordinator struct {
	mu sync.Mutex

	backend   Backend
	meetingID string
	waiting   []api.WaitingParticipant
	onChange  func([]api.WaitingParticipant)
}

// NewHostCoordinator builds the host-side coordinator.
func NewHostCoordinator(backend Backend, meetingID string) *HostCoordinator {
	return &HostCoordinator{backend: backend, meetingID: meetingID}
}

// OnChange registers a callback invoked with the new list after any change.
func (h *HostCoordinator) OnChange(fn func([]api.WaitingParticipant)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// Bind subscribes to waiting-room table changes so realtime pushes refresh
// the list ahead of the polling fallback.
func (h *HostCoordinator) Bind(rt *realtime.Client) {
	if rt == nil {
		return
	}
	rt.OnChange(realtime.TableWaitingRoom, func(realtime.ChangeEvent) {
		if err := h.Refresh(context.Background()); err != nil {
			log.Debug().Err(err).Msg("Waiting-room refresh after realtime change failed")
		}
	})
}

// Refresh refetches the waiting list. Used on mount, on realtime change,
// and by the 5s polling fallback.
func (h *HostCoordinator) Refresh(ctx context.Context) error {
	list, err := h.backend.ListWaiting(ctx, h.meetingID)
	if err != nil {
		return err
	}
	pending := list[:0]
	for _, w := range list {
		if w.Status == "" || w.Status == "waiting" {
			pending = append(pending, w)
		}
	}
	h.setList(pending)
	return nil
}

// Waiting returns the current waiting list.
func (h *HostCoordinator) Waiting() []api.WaitingParticipant {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]api.WaitingParticipant{}, h.waiting...)
}

// Admit lets one participant in, removing them from the local list before
// the backend confirms. Removing an id that is already gone is a no-op.
func (h *HostCoordinator) Admit(ctx context.Context, waitingID string) error {
	h.removeLocal(waitingID)
	if err := h.backend.Admit(ctx, h.meetingID, waitingID); err != nil {
		log.Error().Err(err).Str("waiting", waitingID).Msg("Admit failed")
		return err
	}
	return nil
}

// Reject turns one participant away, with the same optimistic removal.
func (h *HostCoordinator) Reject(ctx context.Context, waitingID string) error {
	h.removeLocal(waitingID)
	if err := h.backend.Reject(ctx, h.meetingID, waitingID); err != nil {
		log.Error().Err(err).Str("waiting", waitingID).Msg("Reject failed")
		return err
	}
	return nil
}

// AdmitAll admits every waiting participant concurrently. With an empty
// list it issues no calls at all. The local list clears only after every
// call completes; individual failures are aggregated into the returned
// error with no further reconciliation.
func (h *HostCoordinator) AdmitAll(ctx context.Context) error {
	h.mu.Lock()
	batch := append([]api.WaitingParticipant{}, h.waiting...)
	h.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	errs := make([]error, len(batch))
	var wg sync.WaitGroup
	for i, w := range batch {
		wg.Add(1)
		go func(i int, waitingID string) {
			defer wg.Done()
			errs[i] = h.backend.Admit(ctx, h.meetingID, waitingID)
		}(i, w.ID)
	}
	wg.Wait()

	h.setList(nil)
	return multierr.Combine(errs...)
}

func (h *HostCoordinator) removeLocal(waitingID string) {
	h.mu.Lock()
	kept := h.waiting[:0]
	for _, w := range h.waiting {
		if w.ID != waitingID {
			kept = append(kept, w)
		}
	}
	h.waiting = kept
	list := append([]api.WaitingParticipant{}, h.waiting...)
	fn := h.onChange
	h.mu.Unlock()
	if fn != nil {
		fn(list)
	}
}

func (h *HostCoordinator) setList(list []api.WaitingParticipant) {
	h.mu.Lock()
	h.waiting = append(h.waiting[:0:0], list...)
	snapshot := append([]api.WaitingParticipant{}, h.waiting...)
	fn := h.onChange
	h.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}

// WaitState is the participant-side outcome.
type WaitState string

const (
	StateWaiting  WaitState = "waiting"
	StateAdmitted WaitState = "admitted"
	StateRejected WaitState = "rejected"
	StateEnded    WaitState = "ended"
)

// admittedDelay gives the backend a beat to finish admission before the
// continuation re-enters the meeting.
const admittedDelay = 1500 * time.Millisecond

// ParticipantCoordinator runs the wait screen for a joining participant:
// it watches the shared waiting-room channel for a decision addressed to
// this user and fires the supplied continuation on admission. Rejected and
// meeting-ended are terminal; once either is reached, later events are
// ignored.
type ParticipantCoordinator struct {
	mu sync.Mutex

	userID     string
	state      WaitState
	onAdmitted func()
	onState    func(WaitState)
	clock      clock.Clock
}

// NewParticipantCoordinator builds the participant-side coordinator.
// onAdmitted is the continuation run after admission (the shell's default
// is a soft page refresh).
func NewParticipantCoordinator(userID string, onAdmitted func()) *ParticipantCoordinator {
	return &ParticipantCoordinator{
		userID:     userID,
		state:      StateWaiting,
		onAdmitted: onAdmitted,
		clock:      clock.New(),
	}
}

// SetClock injects a mock clock for tests.
func (p *ParticipantCoordinator) SetClock(c clock.Clock) {
	p.clock = c
}

// OnStateChange registers a callback for terminal-state transitions.
func (p *ParticipantCoordinator) OnStateChange(fn func(WaitState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

// Bind subscribes to the waiting-room channel and the meeting-ended
// broadcast.
func (p *ParticipantCoordinator) Bind(rt *realtime.Client) {
	if rt == nil {
		return
	}
	rt.OnChange(realtime.TableWaitingRoom, func(ev realtime.ChangeEvent) {
		var payload realtime.WaitingRoomPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			log.Debug().Err(err).Msg("Ignoring malformed waiting-room payload")
			return
		}
		p.HandleDecision(payload)
	})
	rt.OnBroadcast(realtime.EventMeetingEnded, func(json.RawMessage) {
		p.HandleMeetingEnded()
	})
}

// HandleDecision applies a waiting-room change. Events addressed to other
// users on the shared channel are ignored.
func (p *ParticipantCoordinator) HandleDecision(payload realtime.WaitingRoomPayload) {
	if payload.UserID != p.userID {
		return
	}

	switch payload.Status {
	case "admitted":
		if !p.transition(StateWaiting, StateAdmitted) {
			return
		}
		onAdmitted := p.onAdmitted
		if onAdmitted != nil {
			p.clock.AfterFunc(admittedDelay, onAdmitted)
		}
	case "rejected":
		p.transition(StateWaiting, StateRejected)
	}
}

// HandleMeetingEnded marks the wait terminal if no decision arrived first.
// A rejection already shown stays shown even if the meeting ends later.
func (p *ParticipantCoordinator) HandleMeetingEnded() {
	p.transition(StateWaiting, StateEnded)
}

// State returns the current wait state.
func (p *ParticipantCoordinator) State() WaitState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *ParticipantCoordinator) transition(from, to WaitState) bool {
	p.mu.Lock()
	if p.state != from {
		p.mu.Unlock()
		return false
	}
	p.state = to
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(to)
	}
	return true
}
