// Package call composes the full client session: backend join, waiting-room
// handling, media acquisition, transport connection, roster sync, and the
// layout engine. The control API talks to a single Engine.
package call

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"meetsolis-client/config"
	"meetsolis-client/internal/api"
	"meetsolis-client/internal/auth"
	"meetsolis-client/internal/layout"
	"meetsolis-client/internal/media"
	"meetsolis-client/internal/realtime"
	"meetsolis-client/internal/roster"
	"meetsolis-client/internal/scheduler"
	"meetsolis-client/internal/waitingroom"
)

// SourceConnector opens the media transport for an accepted join. It exists
// so tests can join without a live SFU.
type SourceConnector func(ctx context.Context, host, token string) (roster.ParticipantSource, error)

// Engine drives one call session end to end.
type Engine struct {
	cfg       *config.Config
	backend   *api.Client
	meetingID string
	connect   SourceConnector

	mu          sync.RWMutex
	localUserID string
	joined      bool
	ended       bool

	rt     *realtime.Client
	source roster.ParticipantSource
	roster *roster.Roster

	layoutStore *layout.Store
	renderer    *layout.Renderer
	selfView    *layout.SelfViewGeometry

	devices *media.DeviceRegistry
	local   *media.LocalController
	levels  *media.LevelMonitor

	hostRoom        *waitingroom.HostCoordinator
	participantRoom *waitingroom.ParticipantCoordinator

	poller *scheduler.Poller

	// push-to-talk remembers the mute state held before the key went down
	pttActive   bool
	pttPrevious bool

	onEnded func()
}

// Options carries the collaborators the engine composes. Every field is
// required except Connect, which defaults to the SFU transport set by main.
type Options struct {
	Config    *config.Config
	Backend   *api.Client
	MeetingID string
	Connect   SourceConnector

	LayoutStore *layout.Store
	Devices     *media.DeviceRegistry
	Local       *media.LocalController
	Levels      *media.LevelMonitor
	Realtime    *realtime.Client
}

// New builds an Engine from pre-constructed collaborators.
func New(opts Options) *Engine {
	e := &Engine{
		cfg:         opts.Config,
		backend:     opts.Backend,
		meetingID:   opts.MeetingID,
		connect:     opts.Connect,
		rt:          opts.Realtime,
		layoutStore: opts.LayoutStore,
		devices:     opts.Devices,
		local:       opts.Local,
		levels:      opts.Levels,
		poller:      scheduler.New(),
	}
	e.renderer = layout.NewRenderer(opts.LayoutStore)
	e.selfView = layout.NewSelfViewGeometry(opts.LayoutStore, func() layout.ViewMode {
		return e.renderer.Mode(len(e.Participants()))
	})
	e.renderer.SetViewportSource(e.selfView.Viewport)
	return e
}

// OnEnded registers a callback fired once when the meeting ends remotely.
func (e *Engine) OnEnded(fn func()) {
	e.mu.Lock()
	e.onEnded = fn
	e.mu.Unlock()
}

// Join runs the full join sequence. When the meeting has its waiting room
// enabled and the backend parks us, Join returns ErrWaiting and the
// admission continuation completes the join later.
func (e *Engine) Join(ctx context.Context) error {
	res, err := e.backend.JoinMeeting(ctx, e.meetingID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.localUserID = res.Participant.UserID
	e.mu.Unlock()

	if res.Waiting {
		log.Info().Str("meeting", e.meetingID).Msg("Parked in waiting room")
		pc := waitingroom.NewParticipantCoordinator(res.Participant.UserID, func() {
			if err := e.completeJoin(context.Background()); err != nil {
				log.Error().Err(err).Msg("Join after admission failed")
			}
		})
		pc.Bind(e.rt)
		pc.OnStateChange(func(state waitingroom.WaitState) {
			if state == waitingroom.StateRejected || state == waitingroom.StateEnded {
				e.teardown()
			}
		})
		e.mu.Lock()
		e.participantRoom = pc
		e.mu.Unlock()
		return ErrWaiting
	}

	return e.completeJoin(ctx)
}

func (e *Engine) completeJoin(ctx context.Context) error {
	token, err := e.backend.GetCallToken(ctx, e.meetingID)
	if err != nil {
		return err
	}
	claims, err := auth.ParseCallToken(token)
	if err != nil {
		return err
	}

	if err := e.devices.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("Device enumeration failed, continuing without device list")
	}
	prefs := e.devices.Preferences()
	if err := e.local.Acquire(ctx, prefs.MicrophoneID, prefs.CameraID); err != nil {
		return err
	}
	e.levels.StartMonitoring(e.local.AudioTrack())

	source, err := e.connect(ctx, e.cfg.LiveKit.Host, token)
	if err != nil {
		e.levels.StopMonitoring()
		e.local.Stop()
		return err
	}

	e.mu.Lock()
	e.source = source
	e.localUserID = claims.Identity()
	e.roster = roster.New(source, e.backend, e.meetingID, claims.Identity())
	e.joined = true
	e.mu.Unlock()

	e.roster.OnSpotlightChange(func(userID string) {
		e.layoutStore.ApplySpotlight(userID)
	})
	e.roster.OnLocalRoleChange(func(bool) {
		e.syncHostDuties()
	})
	if err := e.roster.Start(ctx, e.rt); err != nil {
		log.Warn().Err(err).Msg("Initial roster fetch failed, realtime and polling will recover")
	}

	e.rt.OnBroadcast(realtime.EventMeetingEnded, func(json.RawMessage) {
		log.Info().Str("meeting", e.meetingID).Msg("Meeting ended by host")
		e.teardown()
	})

	e.syncHostDuties()
	e.startPolling()

	log.Info().Str("meeting", e.meetingID).Str("user", claims.Identity()).Msg("Joined meeting")
	return nil
}

// syncHostDuties reconciles the waiting-room coordinator with the local
// user's current role. It runs after every roster refresh that flips the
// host bit, so a mid-call promotion to co-host gains waiting-room control
// and a demotion releases it.
func (e *Engine) syncHostDuties() {
	r := e.rosterOrNil()
	if r == nil {
		return
	}
	e.mu.RLock()
	bound := e.hostRoom != nil
	e.mu.RUnlock()

	switch {
	case r.LocalIsHost() && !bound:
		e.bindHostDuties()
	case !r.LocalIsHost() && bound:
		log.Info().Str("meeting", e.meetingID).Msg("Host role lost, releasing waiting room control")
		e.mu.Lock()
		e.hostRoom = nil
		e.mu.Unlock()
	}
}

func (e *Engine) bindHostDuties() {
	hc := waitingroom.NewHostCoordinator(e.backend, e.meetingID)
	hc.Bind(e.rt)
	hc.OnChange(func(list []api.WaitingParticipant) {
		e.roster.UpdateWaitingCount(len(list))
	})
	if err := hc.Refresh(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Initial waiting room fetch failed")
	}

	e.mu.Lock()
	e.hostRoom = hc
	e.mu.Unlock()
}

func (e *Engine) startPolling() {
	_ = e.poller.Every(waitingroom.HostPollInterval, "waiting-count", func() {
		e.roster.PollWaitingCount(context.Background(), e.backend)
	})
	_ = e.poller.Every(rosterPollInterval, "roster-sync", func() {
		if err := e.roster.Refresh(context.Background()); err != nil {
			log.Debug().Err(err).Msg("Roster poll failed")
		}
	})
	e.poller.Start()
}

// ToggleSpotlight spotlights the participant, or clears the spotlight when
// they already hold it. The backend write is authoritative: local state only
// changes after it succeeds, and a participant with no database id yet is a
// logged no-op with no backend call.
func (e *Engine) ToggleSpotlight(ctx context.Context, userID string) error {
	r := e.rosterOrNil()
	if r == nil {
		return ErrNotJoined
	}
	if !r.LocalIsHost() {
		return ErrNotHost
	}

	target := ""
	if r.SpotlightUserID() != userID {
		dbID, ok := r.ParticipantDbID(userID)
		if !ok {
			log.Warn().Str("user", userID).Msg("Spotlight skipped, participant has no backend record yet")
			return nil
		}
		target = dbID
	}

	if err := e.backend.SetSpotlight(ctx, e.meetingID, target); err != nil {
		return err
	}
	if target == "" {
		e.layoutStore.ApplySpotlight("")
	} else {
		e.layoutStore.ApplySpotlight(userID)
	}
	return r.Refresh(ctx)
}

// ChangeRole promotes or demotes a participant. Same database-id gating as
// spotlight: no record, no call.
func (e *Engine) ChangeRole(ctx context.Context, userID string, role api.Role) error {
	r := e.rosterOrNil()
	if r == nil {
		return ErrNotJoined
	}
	if !r.LocalIsHost() {
		return ErrNotHost
	}
	dbID, ok := r.ParticipantDbID(userID)
	if !ok {
		log.Warn().Str("user", userID).Msg("Role change skipped, participant has no backend record yet")
		return nil
	}
	if err := e.backend.ChangeRole(ctx, e.meetingID, dbID, role); err != nil {
		return err
	}
	return r.Refresh(ctx)
}

// RemoveParticipant ejects a participant from the meeting.
func (e *Engine) RemoveParticipant(ctx context.Context, userID string) error {
	r := e.rosterOrNil()
	if r == nil {
		return ErrNotJoined
	}
	if !r.LocalIsHost() {
		return ErrNotHost
	}
	dbID, ok := r.ParticipantDbID(userID)
	if !ok {
		log.Warn().Str("user", userID).Msg("Remove skipped, participant has no backend record yet")
		return nil
	}
	if err := e.backend.RemoveParticipant(ctx, e.meetingID, dbID); err != nil {
		return err
	}
	return r.Refresh(ctx)
}

// PushToTalkDown unmutes for the duration of the key press, remembering the
// state to restore. Repeat keydown events while held are ignored.
func (e *Engine) PushToTalkDown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pttActive {
		return
	}
	e.pttActive = true
	e.pttPrevious = e.local.AudioEnabled()
	e.local.SetAudioEnabled(true)
}

// PushToTalkUp restores the mute state held before the key went down.
func (e *Engine) PushToTalkUp() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.pttActive {
		return
	}
	e.pttActive = false
	e.local.SetAudioEnabled(e.pttPrevious)
}

// Participants returns the current merged roster.
func (e *Engine) Participants() []roster.Participant {
	r := e.rosterOrNil()
	if r == nil {
		return nil
	}
	return r.Participants()
}

// Roster exposes the roster for the control API. Nil until joined.
func (e *Engine) Roster() *roster.Roster {
	return e.rosterOrNil()
}

// Renderer exposes the layout renderer.
func (e *Engine) Renderer() *layout.Renderer {
	return e.renderer
}

// SelfView exposes the self-view geometry controller.
func (e *Engine) SelfView() *layout.SelfViewGeometry {
	return e.selfView
}

// LayoutStore exposes the shared layout configuration store.
func (e *Engine) LayoutStore() *layout.Store {
	return e.layoutStore
}

// Devices exposes the device registry.
func (e *Engine) Devices() *media.DeviceRegistry {
	return e.devices
}

// Local exposes the local media controller.
func (e *Engine) Local() *media.LocalController {
	return e.local
}

// WaitingRoom returns the host-side coordinator, or nil for participants.
func (e *Engine) WaitingRoom() *waitingroom.HostCoordinator {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hostRoom
}

// Snapshot is the full client state served by the control API.
type Snapshot struct {
	MeetingID       string                 `json:"meetingId"`
	LocalUserID     string                 `json:"localUserId"`
	Joined          bool                   `json:"joined"`
	ConnectionState roster.ConnectionState `json:"connectionState"`
	Participants    []roster.Participant   `json:"participants"`
	Arrangement     layout.Arrangement     `json:"arrangement"`
	Layout          layout.Config          `json:"layout"`
	AudioEnabled    bool                   `json:"audioEnabled"`
	VideoEnabled    bool                   `json:"videoEnabled"`
	AudioLevel      float64                `json:"audioLevel"`
	WaitingCount    int                    `json:"waitingCount"`
	IsHost          bool                   `json:"isHost"`
}

// Snapshot assembles the current state in one consistent read.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	snap := Snapshot{
		MeetingID:   e.meetingID,
		LocalUserID: e.localUserID,
		Joined:      e.joined,
	}
	r := e.roster
	e.mu.RUnlock()

	snap.Layout = e.layoutStore.Get()
	snap.AudioEnabled = e.local.AudioEnabled()
	snap.VideoEnabled = e.local.VideoEnabled()
	snap.AudioLevel = e.levels.Level()

	if r != nil {
		parts := r.Participants()
		snap.ConnectionState = r.ConnectionState()
		snap.Participants = parts
		snap.Arrangement = e.renderer.Arrange(parts)
		snap.WaitingCount = r.WaitingCount()
		snap.IsHost = r.LocalIsHost()
	}
	return snap
}

// Leave tears the session down in dependency order and is safe to call more
// than once.
func (e *Engine) Leave() {
	e.teardown()
}

func (e *Engine) teardown() {
	e.mu.Lock()
	if e.ended {
		e.mu.Unlock()
		return
	}
	e.ended = true
	e.joined = false
	source := e.source
	onEnded := e.onEnded
	e.mu.Unlock()

	// Order matters: stop producing media before closing the pipes that
	// carry it, then drop signaling, then the transport itself.
	e.local.Stop()
	e.levels.StopMonitoring()
	e.devices.Stop()
	e.poller.Stop()
	if e.rt != nil {
		if err := e.rt.Close(); err != nil {
			log.Debug().Err(err).Msg("Realtime close failed")
		}
	}
	if source != nil {
		if err := source.Close(); err != nil {
			log.Debug().Err(err).Msg("Transport close failed")
		}
	}

	log.Info().Str("meeting", e.meetingID).Msg("Left meeting")
	if onEnded != nil {
		onEnded()
	}
}

func (e *Engine) rosterOrNil() *roster.Roster {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.roster
}
