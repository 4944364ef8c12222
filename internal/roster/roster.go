// Package roster maintains the authoritative participant list for a call:
// live connection state from the video transport merged with the backend's
// participant-role records, kept fresh through realtime invalidation with a
// polling fallback.
package roster

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"meetsolis-client/internal/api"
	"meetsolis-client/internal/realtime"
)

// MeetingFetcher is the backend read used for role reconciliation.
type MeetingFetcher interface {
	GetMeeting(ctx context.Context, meetingID string) (*api.Meeting, error)
}

// WaitingCounter fetches the waiting-room size for hosts.
type WaitingCounter interface {
	CountWaiting(ctx context.Context, meetingID string) (int, error)
}

// Roster reconciles transport identity (userId/sessionId) with backend
// identity (participant database ids). The two keyings are load-bearing:
// the SDK names people by userId, REST actions address the database row, and
// every actionable userId must have a database id before a role, remove, or
// spotlight action may be attempted on it.
type Roster struct {
	mu sync.RWMutex

	source      ParticipantSource
	backend     MeetingFetcher
	meetingID   string
	localUserID string

	roles      map[string]api.Role // userId -> role
	dbIDs      map[string]string   // userId -> participant db id
	dbToUser   map[string]string   // participant db id -> userId
	hostUserID string

	spotlightUserID string
	onSpotlight     func(userID string)

	localIsHost bool
	onLocalRole func(isHost bool)

	lastCount int

	waitingCount int
	panelOpen    bool
	onPanelOpen  func()
}

// New builds a roster for the meeting.
func New(source ParticipantSource, backend MeetingFetcher, meetingID, localUserID string) *Roster {
	return &Roster{
		source:      source,
		backend:     backend,
		meetingID:   meetingID,
		localUserID: localUserID,
		roles:       make(map[string]api.Role),
		dbIDs:       make(map[string]string),
		dbToUser:    make(map[string]string),
	}
}

// OnSpotlightChange registers the callback invoked with the translated
// spotlight userId whenever a refresh observes a new backend spotlight
// value. An empty string means the spotlight was cleared.
func (r *Roster) OnSpotlightChange(fn func(userID string)) {
	r.mu.Lock()
	r.onSpotlight = fn
	r.mu.Unlock()
}

// OnLocalRoleChange registers the callback fired when a refresh changes
// whether the local user holds host or co-host powers, in either direction.
// Mid-call promotions arrive here.
func (r *Roster) OnLocalRoleChange(fn func(isHost bool)) {
	r.mu.Lock()
	r.onLocalRole = fn
	r.mu.Unlock()
}

// OnWaitingPanelAutoOpen registers the callback fired when the waiting-room
// count transitions above zero while the panel is closed.
func (r *Roster) OnWaitingPanelAutoOpen(fn func()) {
	r.mu.Lock()
	r.onPanelOpen = fn
	r.mu.Unlock()
}

// Start wires refresh triggers: transport roster changes (refetch when the
// participant count changes) and realtime invalidation of the participants
// and meetings tables. It performs the initial fetch before returning.
func (r *Roster) Start(ctx context.Context, rt *realtime.Client) error {
	r.source.OnChange(func() {
		count := len(r.source.Participants())
		r.mu.Lock()
		changed := count != r.lastCount
		r.lastCount = count
		r.mu.Unlock()
		if changed {
			go r.refresh(context.Background())
		}
	})

	if rt != nil {
		rt.OnChange(realtime.TableParticipants, func(realtime.ChangeEvent) {
			// Payloads are advisory; re-fetch authoritative state.
			go r.refresh(context.Background())
		})
		rt.OnChange(realtime.TableMeetings, func(realtime.ChangeEvent) {
			go r.refresh(context.Background())
		})
	}

	return r.refresh(ctx)
}

// Refresh refetches roles immediately. Later fetches win; bursts are
// naturally serialized by the backend round-trip.
func (r *Roster) Refresh(ctx context.Context) error {
	return r.refresh(ctx)
}

func (r *Roster) refresh(ctx context.Context) error {
	meeting, err := r.backend.GetMeeting(ctx, r.meetingID)
	if err != nil {
		log.Error().Err(err).Str("meeting", r.meetingID).Msg("Failed to fetch meeting for role reconciliation")
		return err
	}

	roles := make(map[string]api.Role, len(meeting.Participants))
	dbIDs := make(map[string]string, len(meeting.Participants))
	dbToUser := make(map[string]string, len(meeting.Participants))
	for _, p := range meeting.Participants {
		roles[p.UserID] = p.Role
		dbIDs[p.UserID] = p.ID
		dbToUser[p.ID] = p.UserID
	}
	// Host detection is derived from the meeting record itself and takes
	// precedence over a stale per-row role value.
	if meeting.HostID != "" {
		roles[meeting.HostID] = api.RoleHost
	}

	spotlightUser := ""
	if meeting.SpotlightParticipantID != "" {
		spotlightUser = dbToUser[meeting.SpotlightParticipantID]
	}

	localRole := roles[r.localUserID]
	isHost := localRole == api.RoleHost || localRole == api.RoleCoHost

	r.mu.Lock()
	r.roles = roles
	r.dbIDs = dbIDs
	r.dbToUser = dbToUser
	r.hostUserID = meeting.HostID
	spotlightChanged := spotlightUser != r.spotlightUserID
	r.spotlightUserID = spotlightUser
	onSpotlight := r.onSpotlight
	roleChanged := isHost != r.localIsHost
	r.localIsHost = isHost
	onLocalRole := r.onLocalRole
	r.mu.Unlock()

	if spotlightChanged && onSpotlight != nil {
		onSpotlight(spotlightUser)
	}
	if roleChanged && onLocalRole != nil {
		onLocalRole(isHost)
	}
	return nil
}

// Participants returns the live transport roster.
func (r *Roster) Participants() []Participant {
	return r.source.Participants()
}

// LocalParticipant returns the local leg.
func (r *Roster) LocalParticipant() (Participant, bool) {
	return r.source.LocalParticipant()
}

// ConnectionState returns the transport connection state.
func (r *Roster) ConnectionState() ConnectionState {
	return r.source.ConnectionState()
}

// Role returns the user's meeting role; unknown users are plain
// participants.
func (r *Roster) Role(userID string) api.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if role, ok := r.roles[userID]; ok {
		return role
	}
	return api.RoleParticipant
}

// ParticipantDbID resolves a userId to the backend row id. The second
// return is false while reconciliation has not caught up; callers must
// treat that as "action unavailable", not an error.
func (r *Roster) ParticipantDbID(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.dbIDs[userID]
	return id, ok
}

// UserForDbID is the reverse translation, used to map the backend's
// spotlight value onto roster identities.
func (r *Roster) UserForDbID(dbID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.dbToUser[dbID]
	return userID, ok
}

// HostUserID returns the meeting host's userId.
func (r *Roster) HostUserID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostUserID
}

// SpotlightUserID returns the backend spotlight translated to a userId.
func (r *Roster) SpotlightUserID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.spotlightUserID
}

// LocalIsHost reports whether the local user is host or co-host.
func (r *Roster) LocalIsHost() bool {
	role := r.Role(r.localUserID)
	return role == api.RoleHost || role == api.RoleCoHost
}

// UpdateWaitingCount records a fresh waiting-room count (from polling or
// realtime) and auto-opens the panel on a zero-to-positive transition while
// it is closed.
func (r *Roster) UpdateWaitingCount(count int) {
	r.mu.Lock()
	prev := r.waitingCount
	r.waitingCount = count
	shouldOpen := count > 0 && prev == 0 && !r.panelOpen
	onOpen := r.onPanelOpen
	if shouldOpen {
		r.panelOpen = true
	}
	r.mu.Unlock()

	if shouldOpen && onOpen != nil {
		onOpen()
	}
}

// PollWaitingCount fetches the waiting-room count when the local user is
// host or co-host. Called on a fixed 10s interval as the realtime fallback;
// failures degrade silently with only a log line.
func (r *Roster) PollWaitingCount(ctx context.Context, counter WaitingCounter) {
	if !r.LocalIsHost() {
		return
	}
	count, err := counter.CountWaiting(ctx, r.meetingID)
	if err != nil {
		log.Debug().Err(err).Msg("Waiting-room count fetch failed")
		return
	}
	r.UpdateWaitingCount(count)
}

// WaitingCount returns the last known waiting-room size.
func (r *Roster) WaitingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waitingCount
}

// SetPanelOpen records the waiting-room panel state driven by the user.
func (r *Roster) SetPanelOpen(open bool) {
	r.mu.Lock()
	r.panelOpen = open
	r.mu.Unlock()
}

// PanelOpen reports whether the waiting-room panel is showing.
func (r *Roster) PanelOpen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.panelOpen
}
