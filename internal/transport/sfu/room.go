// Package sfu adapts a LiveKit room connection to the roster source
// interface the layout engine consumes. Each remote participant maps to one
// roster entry keyed by its connection SID, so duplicate joins by the same
// user stay distinct.
package sfu

import (
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/rs/zerolog/log"

	"meetsolis-client/internal/roster"
)

// Source is a roster.ParticipantSource backed by a LiveKit SFU room.
type Source struct {
	mu        sync.RWMutex
	room      *lksdk.Room
	state     roster.ConnectionState
	listeners []func()
}

// Connect joins the LiveKit room at host with a pre-issued access token and
// returns a connected Source. The token carries the room name and the local
// identity, so nothing else needs to be passed here.
func Connect(host, token string) (*Source, error) {
	s := &Source{state: roster.ConnStateJoining}

	room, err := lksdk.ConnectToRoomWithToken(host, token, s.roomCallback())
	if err != nil {
		s.setState(roster.ConnStateFailed)
		return nil, err
	}

	s.mu.Lock()
	s.room = room
	s.state = roster.ConnStateJoined
	s.mu.Unlock()

	log.Info().Str("host", host).Str("room", room.Name()).Msg("Connected to SFU room")
	s.notify()
	return s, nil
}

func (s *Source) roomCallback() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			log.Debug().Str("identity", string(rp.Identity())).Msg("Participant connected")
			s.notify()
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			log.Debug().Str("identity", string(rp.Identity())).Msg("Participant disconnected")
			s.notify()
		},
		OnActiveSpeakersChanged: func(_ []lksdk.Participant) {
			s.notify()
		},
		OnReconnecting: func() {
			s.setState(roster.ConnStateReconnecting)
			s.notify()
		},
		OnReconnected: func() {
			s.setState(roster.ConnStateJoined)
			s.notify()
		},
		OnDisconnected: func() {
			s.setState(roster.ConnStateDisconnected)
			s.notify()
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackPublished: func(_ *lksdk.RemoteTrackPublication, _ *lksdk.RemoteParticipant) {
				s.notify()
			},
			OnTrackUnpublished: func(_ *lksdk.RemoteTrackPublication, _ *lksdk.RemoteParticipant) {
				s.notify()
			},
			OnTrackMuted: func(_ lksdk.TrackPublication, _ lksdk.Participant) {
				s.notify()
			},
			OnTrackUnmuted: func(_ lksdk.TrackPublication, _ lksdk.Participant) {
				s.notify()
			},
		},
	}
}

// Participants returns every connected leg, local first, then remotes in the
// SDK's join order.
func (s *Source) Participants() []roster.Participant {
	s.mu.RLock()
	room := s.room
	s.mu.RUnlock()
	if room == nil {
		return nil
	}

	remotes := room.GetRemoteParticipants()
	out := make([]roster.Participant, 0, len(remotes)+1)
	out = append(out, mapParticipant(room.LocalParticipant, true))
	for _, rp := range remotes {
		out = append(out, mapParticipant(rp, false))
	}
	return out
}

// LocalParticipant returns the local leg once the room is joined.
func (s *Source) LocalParticipant() (roster.Participant, bool) {
	s.mu.RLock()
	room := s.room
	s.mu.RUnlock()
	if room == nil {
		return roster.Participant{}, false
	}
	return mapParticipant(room.LocalParticipant, true), true
}

// ConnectionState returns the current call connection state.
func (s *Source) ConnectionState() roster.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnChange registers a callback fired after any roster or connection change.
func (s *Source) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Close leaves the room. Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	room := s.room
	s.room = nil
	s.state = roster.ConnStateDisconnected
	s.mu.Unlock()
	if room != nil {
		room.Disconnect()
	}
	return nil
}

func (s *Source) setState(state roster.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Source) notify() {
	s.mu.RLock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

// mapParticipant flattens an SDK participant into the roster model. Video
// state is only known when a camera publication exists; otherwise it stays
// unknown and downstream filters fail open.
func mapParticipant(p lksdk.Participant, local bool) roster.Participant {
	out := roster.Participant{
		SessionID:   string(p.SID()),
		UserID:      string(p.Identity()),
		DisplayName: p.Name(),
		IsLocal:     local,
		IsSpeaking:  p.IsSpeaking(),
		Tracks:      map[roster.TrackKind]bool{},
		Video:       roster.VideoUnknown,
	}

	for _, pub := range p.TrackPublications() {
		switch pub.Source() {
		case livekit.TrackSource_SCREEN_SHARE, livekit.TrackSource_SCREEN_SHARE_AUDIO:
			if !pub.IsMuted() {
				out.Tracks[roster.TrackScreenShare] = true
			}
		case livekit.TrackSource_CAMERA:
			out.Tracks[roster.TrackVideo] = !pub.IsMuted()
			if pub.IsMuted() {
				out.Video = roster.VideoOff
			} else {
				out.Video = roster.VideoOn
			}
		case livekit.TrackSource_MICROPHONE:
			out.Tracks[roster.TrackAudio] = !pub.IsMuted()
		}
	}
	return out
}
