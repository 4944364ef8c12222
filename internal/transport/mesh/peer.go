// Package mesh is the legacy peer-to-peer transport used for small meetings
// that predate the SFU rollout. Every participant keeps one peer connection
// per remote, with offers, answers, and ICE candidates exchanged over the
// meeting's realtime channel. It satisfies the same roster source interface
// as the SFU adapter, so the layout engine does not know which transport is
// underneath.
package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"meetsolis-client/internal/retry"
	"meetsolis-client/internal/roster"
)

// Channel is the slice of the realtime client the mesh needs for signaling.
type Channel interface {
	OnBroadcast(event string, fn func(json.RawMessage))
	Broadcast(event string, payload any) error
}

// Signaling event names on the realtime channel.
const (
	EventSignalOffer     = "webrtc_offer"
	EventSignalAnswer    = "webrtc_answer"
	EventSignalCandidate = "webrtc_candidate"
	EventSignalJoin      = "webrtc_join"
	EventSignalLeave     = "webrtc_leave"
)

// signalPayload is one signaling message. To is empty on join/leave
// announcements, which every peer consumes.
type signalPayload struct {
	From        string                     `json:"from"`
	FromName    string                     `json:"from_name,omitempty"`
	To          string                     `json:"to,omitempty"`
	Description *webrtc.SessionDescription `json:"description,omitempty"`
	Candidate   *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

type peer struct {
	userID      string
	displayName string
	pc          *webrtc.PeerConnection
	hasAudio    bool
	hasVideo    bool
	failed      bool
}

// Source is a roster.ParticipantSource backed by a full mesh of peer
// connections. Session IDs equal user IDs on this transport: the legacy
// stack never supported duplicate joins.
type Source struct {
	channel     Channel
	localUserID string
	localName   string
	config      webrtc.Configuration
	policy      *retry.Policy

	mu    sync.RWMutex
	peers map[string]*peer
	// order holds peer user ids in the order we first saw them, so the
	// roster comes out in stable join order instead of map order.
	order     []string
	state     roster.ConnectionState
	listeners []func()
	closed    bool
}

// Join announces the local participant on the channel and starts answering
// offers from existing peers. ICE servers default to public STUN when none
// are given.
func Join(ctx context.Context, channel Channel, localUserID, localName string, iceServers []string) (*Source, error) {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	s := &Source{
		channel:     channel,
		localUserID: localUserID,
		localName:   localName,
		config: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
		},
		policy: retry.NewPolicy(),
		peers:  make(map[string]*peer),
		state:  roster.ConnStateJoining,
	}

	channel.OnBroadcast(EventSignalJoin, s.handleJoin)
	channel.OnBroadcast(EventSignalLeave, s.handleLeave)
	channel.OnBroadcast(EventSignalOffer, s.handleOffer)
	channel.OnBroadcast(EventSignalAnswer, s.handleAnswer)
	channel.OnBroadcast(EventSignalCandidate, s.handleCandidate)

	announce := func() error {
		return channel.Broadcast(EventSignalJoin, signalPayload{From: localUserID, FromName: localName})
	}
	if err := s.policy.Do(ctx, announce); err != nil {
		return nil, fmt.Errorf("mesh join announce: %w", err)
	}

	s.mu.Lock()
	s.state = roster.ConnStateJoined
	s.mu.Unlock()
	s.notify()
	return s, nil
}

// handleJoin reacts to an announce from an unknown peer. The side with the
// lexically smaller user id makes the offer, so both peers never glare; the
// larger side answers a plain announce with an addressed announce of its own,
// so the mesh forms in either join order.
func (s *Source) handleJoin(raw json.RawMessage) {
	var p signalPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.From == "" || p.From == s.localUserID {
		return
	}
	if p.To != "" && p.To != s.localUserID {
		return
	}
	s.mu.RLock()
	_, known := s.peers[p.From]
	s.mu.RUnlock()
	if known {
		return
	}

	if s.localUserID < p.From {
		if err := s.offerTo(p.From, p.FromName); err != nil {
			log.Warn().Err(err).Str("peer", p.From).Msg("Mesh offer failed")
		}
		return
	}
	// The remote side is the offerer. A plain announce means it joined after
	// us and has never heard of us; tell it we exist so it can offer.
	if p.To == "" {
		s.send(EventSignalJoin, signalPayload{
			From: s.localUserID, FromName: s.localName, To: p.From,
		})
	}
}

func (s *Source) handleLeave(raw json.RawMessage) {
	var p signalPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.From == "" {
		return
	}
	s.mu.Lock()
	pr, ok := s.peers[p.From]
	delete(s.peers, p.From)
	s.order = removeID(s.order, p.From)
	s.mu.Unlock()
	if ok {
		_ = pr.pc.Close()
		s.notify()
	}
}

func (s *Source) handleOffer(raw json.RawMessage) {
	var p signalPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.To != s.localUserID || p.Description == nil {
		return
	}
	pr, err := s.ensurePeer(p.From, p.FromName)
	if err != nil {
		log.Warn().Err(err).Str("peer", p.From).Msg("Mesh peer setup failed")
		return
	}
	if err := pr.pc.SetRemoteDescription(*p.Description); err != nil {
		log.Warn().Err(err).Str("peer", p.From).Msg("Mesh offer rejected")
		return
	}
	answer, err := pr.pc.CreateAnswer(nil)
	if err == nil {
		err = pr.pc.SetLocalDescription(answer)
	}
	if err != nil {
		log.Warn().Err(err).Str("peer", p.From).Msg("Mesh answer failed")
		return
	}
	s.send(EventSignalAnswer, signalPayload{
		From: s.localUserID, FromName: s.localName, To: p.From, Description: &answer,
	})
}

func (s *Source) handleAnswer(raw json.RawMessage) {
	var p signalPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.To != s.localUserID || p.Description == nil {
		return
	}
	s.mu.RLock()
	pr, ok := s.peers[p.From]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if err := pr.pc.SetRemoteDescription(*p.Description); err != nil {
		log.Warn().Err(err).Str("peer", p.From).Msg("Mesh answer rejected")
	}
}

func (s *Source) handleCandidate(raw json.RawMessage) {
	var p signalPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.To != s.localUserID || p.Candidate == nil {
		return
	}
	s.mu.RLock()
	pr, ok := s.peers[p.From]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if err := pr.pc.AddICECandidate(*p.Candidate); err != nil {
		log.Debug().Err(err).Str("peer", p.From).Msg("Dropping ICE candidate")
	}
}

func (s *Source) offerTo(userID, name string) error {
	pr, err := s.ensurePeer(userID, name)
	if err != nil {
		return err
	}
	offer, err := pr.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := pr.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	s.send(EventSignalOffer, signalPayload{
		From: s.localUserID, FromName: s.localName, To: userID, Description: &offer,
	})
	return nil
}

func (s *Source) ensurePeer(userID, name string) (*peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pr, ok := s.peers[userID]; ok {
		return pr, nil
	}

	pc, err := webrtc.NewPeerConnection(s.config)
	if err != nil {
		return nil, err
	}
	// Receive-only transceivers so the offer always carries media sections;
	// local tracks are attached later by the media controller.
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}
	pr := &peer{userID: userID, displayName: name, pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		s.send(EventSignalCandidate, signalPayload{
			From: s.localUserID, To: userID, Candidate: &init,
		})
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.mu.Lock()
		switch track.Kind() {
		case webrtc.RTPCodecTypeAudio:
			pr.hasAudio = true
		case webrtc.RTPCodecTypeVideo:
			pr.hasVideo = true
		}
		s.mu.Unlock()
		s.notify()
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			s.mu.Lock()
			pr.failed = true
			s.mu.Unlock()
			log.Warn().Str("peer", userID).Str("state", state.String()).Msg("Mesh peer connection lost")
		case webrtc.PeerConnectionStateConnected:
			s.mu.Lock()
			pr.failed = false
			s.mu.Unlock()
		}
		s.notify()
	})

	s.peers[userID] = pr
	s.order = append(s.order, userID)
	return pr, nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func (s *Source) send(event string, payload signalPayload) {
	if err := s.channel.Broadcast(event, payload); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Mesh signal send failed")
	}
}

// Participants returns the local leg plus every live peer in stable join
// order. Peers whose connection has failed are excluded until renegotiation
// restores them.
func (s *Source) Participants() []roster.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]roster.Participant, 0, len(s.order)+1)
	out = append(out, s.localLocked())
	for _, id := range s.order {
		pr, ok := s.peers[id]
		if !ok || pr.failed {
			continue
		}
		rp := roster.Participant{
			SessionID:   pr.userID,
			UserID:      pr.userID,
			DisplayName: pr.displayName,
			Tracks:      map[roster.TrackKind]bool{},
			Video:       roster.VideoUnknown,
		}
		if pr.hasAudio {
			rp.Tracks[roster.TrackAudio] = true
		}
		if pr.hasVideo {
			rp.Tracks[roster.TrackVideo] = true
			rp.Video = roster.VideoOn
		}
		out = append(out, rp)
	}
	return out
}

// LocalParticipant returns the local leg.
func (s *Source) LocalParticipant() (roster.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return roster.Participant{}, false
	}
	return s.localLocked(), true
}

func (s *Source) localLocked() roster.Participant {
	return roster.Participant{
		SessionID:   s.localUserID,
		UserID:      s.localUserID,
		DisplayName: s.localName,
		IsLocal:     true,
		Tracks:      map[roster.TrackKind]bool{},
		Video:       roster.VideoUnknown,
	}
}

// ConnectionState returns the mesh lifecycle state.
func (s *Source) ConnectionState() roster.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnChange registers a callback fired after any peer or track change.
func (s *Source) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Close announces departure and tears down every peer connection.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = roster.ConnStateDisconnected
	peers := make([]*peer, 0, len(s.peers))
	for _, pr := range s.peers {
		peers = append(peers, pr)
	}
	s.peers = make(map[string]*peer)
	s.order = nil
	s.mu.Unlock()

	if err := s.channel.Broadcast(EventSignalLeave, signalPayload{From: s.localUserID}); err != nil {
		log.Debug().Err(err).Msg("Mesh leave announce failed")
	}
	for _, pr := range peers {
		_ = pr.pc.Close()
	}
	s.notify()
	return nil
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
