package mesh

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"meetsolis-client/internal/roster"
)

// fakeChannel loops broadcasts back to every subscriber, standing in for the
// meeting's realtime channel.
type fakeChannel struct {
	mu   sync.Mutex
	subs map[string][]func(json.RawMessage)
	sent []string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{subs: map[string][]func(json.RawMessage){}}
}

func (f *fakeChannel) OnBroadcast(event string, fn func(json.RawMessage)) {
	f.mu.Lock()
	f.subs[event] = append(f.subs[event], fn)
	f.mu.Unlock()
}

func (f *fakeChannel) Broadcast(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, event)
	fns := append([]func(json.RawMessage){}, f.subs[event]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(raw)
	}
	return nil
}

func (f *fakeChannel) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.sent...)
}

func TestJoinAnnouncesAndReportsLocal(t *testing.T) {
	ch := newFakeChannel()
	src, err := Join(context.Background(), ch, "user-a", "Alice", nil)
	require.NoError(t, err)
	defer src.Close()

	require.Contains(t, ch.events(), EventSignalJoin)
	require.Equal(t, roster.ConnStateJoined, src.ConnectionState())

	local, ok := src.LocalParticipant()
	require.True(t, ok)
	require.True(t, local.IsLocal)
	require.Equal(t, "user-a", local.UserID)

	parts := src.Participants()
	require.Len(t, parts, 1)
	require.Equal(t, "user-a", parts[0].SessionID)
}

func TestNewcomerTriggersOfferFromLowerID(t *testing.T) {
	ch := newFakeChannel()
	src, err := Join(context.Background(), ch, "aaa", "Low", nil)
	require.NoError(t, err)
	defer src.Close()

	raw, _ := json.Marshal(signalPayload{From: "zzz", FromName: "High"})
	src.handleJoin(raw)

	require.Contains(t, ch.events(), EventSignalOffer)
}

func TestHigherIDAnswersAnnounceInsteadOfOffering(t *testing.T) {
	ch := newFakeChannel()
	src, err := Join(context.Background(), ch, "zzz", "High", nil)
	require.NoError(t, err)
	defer src.Close()

	raw, _ := json.Marshal(signalPayload{From: "aaa", FromName: "Low"})
	src.handleJoin(raw)

	// Glare avoidance holds: the larger id never offers. It answers the
	// plain announce with an addressed one so the smaller side can.
	require.NotContains(t, ch.events(), EventSignalOffer)
	joins := 0
	for _, ev := range ch.events() {
		if ev == EventSignalJoin {
			joins++
		}
	}
	require.Equal(t, 2, joins, "own announce plus the addressed reply")
}

func TestMeshFormsWhenLowerIDJoinsSecond(t *testing.T) {
	ch := newFakeChannel()

	z, err := Join(context.Background(), ch, "zzz", "High", nil)
	require.NoError(t, err)
	defer z.Close()

	a, err := Join(context.Background(), ch, "aaa", "Low", nil)
	require.NoError(t, err)
	defer a.Close()

	// aaa's announce reaches zzz, which replies with an addressed announce;
	// aaa then makes the offer and zzz answers.
	require.Contains(t, ch.events(), EventSignalOffer)
	require.Contains(t, ch.events(), EventSignalAnswer)

	require.Len(t, z.Participants(), 2)
	require.Len(t, a.Participants(), 2)
}

func TestRepeatedAnnounceFromKnownPeerIsIgnored(t *testing.T) {
	ch := newFakeChannel()

	a, err := Join(context.Background(), ch, "aaa", "Alice", nil)
	require.NoError(t, err)
	defer a.Close()

	b, err := Join(context.Background(), ch, "bbb", "Bob", nil)
	require.NoError(t, err)
	defer b.Close()

	offers := func() int {
		n := 0
		for _, ev := range ch.events() {
			if ev == EventSignalOffer {
				n++
			}
		}
		return n
	}
	before := offers()

	raw, _ := json.Marshal(signalPayload{From: "bbb", FromName: "Bob"})
	a.handleJoin(raw)

	require.Equal(t, before, offers(), "no renegotiation on a duplicate announce")
}

func TestParticipantsKeepJoinOrder(t *testing.T) {
	ch := newFakeChannel()
	src, err := Join(context.Background(), ch, "mmm", "Mid", nil)
	require.NoError(t, err)
	defer src.Close()

	for _, id := range []string{"bbb", "aaa", "ccc"} {
		_, err := src.ensurePeer(id, id)
		require.NoError(t, err)
	}

	want := []string{"mmm", "bbb", "aaa", "ccc"}
	for i := 0; i < 5; i++ {
		parts := src.Participants()
		got := make([]string, len(parts))
		for j, p := range parts {
			got[j] = p.UserID
		}
		require.Equal(t, want, got, "order is join order, not map order")
	}

	raw, _ := json.Marshal(signalPayload{From: "aaa"})
	src.handleLeave(raw)

	parts := src.Participants()
	got := make([]string, len(parts))
	for j, p := range parts {
		got[j] = p.UserID
	}
	require.Equal(t, []string{"mmm", "bbb", "ccc"}, got)
}

func TestOwnJoinEchoIsIgnored(t *testing.T) {
	ch := newFakeChannel()
	src, err := Join(context.Background(), ch, "aaa", "Low", nil)
	require.NoError(t, err)
	defer src.Close()

	raw, _ := json.Marshal(signalPayload{From: "aaa", FromName: "Low"})
	src.handleJoin(raw)

	require.NotContains(t, ch.events(), EventSignalOffer)
	require.Len(t, src.Participants(), 1)
}

func TestTwoPeersNegotiate(t *testing.T) {
	ch := newFakeChannel()

	a, err := Join(context.Background(), ch, "aaa", "Alice", nil)
	require.NoError(t, err)
	defer a.Close()

	b, err := Join(context.Background(), ch, "bbb", "Bob", nil)
	require.NoError(t, err)
	defer b.Close()

	// The join loopback already delivered bbb's announce to aaa, which
	// offered; bbb answered. Both ends now track each other.
	require.Contains(t, ch.events(), EventSignalOffer)
	require.Contains(t, ch.events(), EventSignalAnswer)

	require.Len(t, a.Participants(), 2)
	require.Len(t, b.Participants(), 2)
}

func TestLeaveRemovesPeer(t *testing.T) {
	ch := newFakeChannel()

	a, err := Join(context.Background(), ch, "aaa", "Alice", nil)
	require.NoError(t, err)
	defer a.Close()

	b, err := Join(context.Background(), ch, "bbb", "Bob", nil)
	require.NoError(t, err)

	require.Len(t, a.Participants(), 2)

	require.NoError(t, b.Close())
	require.Len(t, a.Participants(), 1)
	require.Equal(t, "aaa", a.Participants()[0].UserID)
}

func TestCloseIsIdempotent(t *testing.T) {
	ch := newFakeChannel()
	src, err := Join(context.Background(), ch, "aaa", "Alice", nil)
	require.NoError(t, err)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	require.Equal(t, roster.ConnStateDisconnected, src.ConnectionState())

	_, ok := src.LocalParticipant()
	require.False(t, ok)
}

func TestChangeListenersFireOnPeerChurn(t *testing.T) {
	ch := newFakeChannel()
	src, err := Join(context.Background(), ch, "aaa", "Alice", nil)
	require.NoError(t, err)
	defer src.Close()

	var mu sync.Mutex
	fired := 0
	src.OnChange(func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	other, err := Join(context.Background(), ch, "bbb", "Bob", nil)
	require.NoError(t, err)
	require.NoError(t, other.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, fired, 0)
}
