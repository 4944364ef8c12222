package roster

// TrackKind identifies a published media track on a participant.
type TrackKind string

const (
	TrackAudio       TrackKind = "audio"
	TrackVideo       TrackKind = "video"
	TrackScreenShare TrackKind = "screen_share"
)

// VideoState reports whether a participant currently has a live camera feed.
// Not every transport can answer this reliably, so unknown is a first-class
// value and downstream filters must fail open on it.
type VideoState int

const (
	VideoUnknown VideoState = iota
	VideoOn
	VideoOff
)

// ConnectionState mirrors the vendor SDK's call connection lifecycle.
type ConnectionState string

const (
	ConnStateJoining      ConnectionState = "joining"
	ConnStateJoined       ConnectionState = "joined"
	ConnStateReconnecting ConnectionState = "reconnecting"
	ConnStateDisconnected ConnectionState = "disconnected"
	ConnStateFailed       ConnectionState = "failed"
)

// Participant is one connected call leg. SessionID is unique per connection
// and is the rendering identity; UserID is stable across reconnects and is
// the identity used for role and permission lookups. The same user can hold
// several sessions at once.
type Participant struct {
	SessionID   string
	UserID      string
	DisplayName string
	IsLocal     bool
	IsSpeaking  bool
	Tracks      map[TrackKind]bool
	Video       VideoState
}

// HasTrack reports whether the participant publishes the given track kind.
func (p Participant) HasTrack(kind TrackKind) bool {
	return p.Tracks[kind]
}

// IsScreenSharing reports whether the participant publishes a screen share.
func (p Participant) IsScreenSharing() bool {
	return p.HasTrack(TrackScreenShare)
}

// ParticipantSource is the narrow transport surface the layout engine
// consumes. Both the SFU adapter and the legacy mesh adapter satisfy it, so
// layout logic is written once.
type ParticipantSource interface {
	// Participants returns every connected participant, local included,
	// in stable join order.
	Participants() []Participant

	// LocalParticipant returns the local leg, if connected.
	LocalParticipant() (Participant, bool)

	// ConnectionState returns the current call connection state.
	ConnectionState() ConnectionState

	// OnChange registers a callback invoked after any roster or connection
	// state change. Callbacks must not block.
	OnChange(fn func())

	// Close leaves the call and releases transport resources.
	Close() error
}
