package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"meetsolis-client/config"
	"meetsolis-client/internal/api"
	"meetsolis-client/internal/auth"
	"meetsolis-client/internal/call"
	"meetsolis-client/internal/layout"
	"meetsolis-client/internal/media"
	"meetsolis-client/internal/realtime"
	"meetsolis-client/internal/roster"
)

type stubTrack struct {
	mu      sync.Mutex
	kind    media.TrackKind
	enabled bool
}

func (t *stubTrack) ID() string            { return string(t.kind) }
func (t *stubTrack) Kind() media.TrackKind { return t.kind }
func (t *stubTrack) DeviceID() string      { return "dev-1" }
func (t *stubTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}
func (t *stubTrack) SetEnabled(on bool) {
	t.mu.Lock()
	t.enabled = on
	t.mu.Unlock()
}
func (t *stubTrack) Stop() {}

type stubProvider struct{}

func (stubProvider) EnumerateDevices(context.Context) ([]media.Device, error) {
	return []media.Device{
		{DeviceID: "cam-1", Label: "Camera", Kind: media.KindCamera},
		{DeviceID: "mic-1", Label: "Microphone", Kind: media.KindMicrophone},
	}, nil
}

func (stubProvider) AcquireTracks(_ context.Context, c media.Constraints) ([]media.Track, error) {
	var tracks []media.Track
	if c.Audio {
		tracks = append(tracks, &stubTrack{kind: media.TrackAudio, enabled: true})
	}
	if c.Video {
		tracks = append(tracks, &stubTrack{kind: media.TrackVideo, enabled: true})
	}
	return tracks, nil
}

func (stubProvider) OnDeviceChange(func()) func() { return func() {} }

type stubSource struct {
	parts []roster.Participant
}

func (s *stubSource) Participants() []roster.Participant { return s.parts }
func (s *stubSource) LocalParticipant() (roster.Participant, bool) {
	for _, p := range s.parts {
		if p.IsLocal {
			return p, true
		}
	}
	return roster.Participant{}, false
}
func (s *stubSource) ConnectionState() roster.ConnectionState { return roster.ConnStateJoined }
func (s *stubSource) OnChange(func())                         {}
func (s *stubSource) Close() error                            { return nil }

func backendServer(t *testing.T) *httptest.Server {
	t.Helper()
	const meetingID = "m1"
	mux := http.NewServeMux()
	prefix := "/api/meetings/" + meetingID

	mux.HandleFunc(prefix+"/join", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.JoinResult{
			Meeting:     api.Meeting{ID: meetingID, HostID: "host-user"},
			Participant: api.ParticipantRecord{ID: "row-1", UserID: "host-user"},
		})
	})
	mux.HandleFunc(prefix+"/token", func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.GenerateDevToken("key", "secret", meetingID, "host-user", "Host", time.Hour)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
	mux.HandleFunc(prefix+"/spotlight", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc(prefix+"/waiting-room/count", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{"count": 0})
	})
	mux.HandleFunc(prefix+"/waiting-room", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]api.WaitingParticipant{})
	})
	mux.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.Meeting{
			ID:     meetingID,
			HostID: "host-user",
			Participants: []api.ParticipantRecord{
				{ID: "row-1", UserID: "host-user", Role: api.RoleHost},
				{ID: "row-2", UserID: "guest-user", Role: api.RoleParticipant},
			},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestApp(t *testing.T, authToken string) (*fiber.App, *call.Engine) {
	t.Helper()
	server := backendServer(t)

	src := &stubSource{parts: []roster.Participant{
		{SessionID: "s1", UserID: "host-user", IsLocal: true},
		{SessionID: "s2", UserID: "guest-user"},
		{SessionID: "s3", UserID: "third-user"},
	}}

	provider := stubProvider{}
	eng := call.New(call.Options{
		Config:    &config.Config{},
		Backend:   api.NewClient(server.URL, "token", 5*time.Second),
		MeetingID: "m1",
		Connect: func(context.Context, string, string) (roster.ParticipantSource, error) {
			return src, nil
		},
		LayoutStore: layout.NewStore(nil),
		Devices:     media.NewDeviceRegistry(provider, nil),
		Local:       media.NewLocalController(provider, config.MediaConfig{}),
		Levels: media.NewLevelMonitorWithClock(func(media.Track) (media.Analyser, error) {
			return nil, media.ErrStream
		}, clock.NewMock()),
		Realtime: realtime.NewClient("ws://127.0.0.1:0", "m1"),
	})
	require.NoError(t, eng.Join(context.Background()))
	t.Cleanup(eng.Leave)

	app := fiber.New()
	Register(app, NewControlHandler(eng), authToken)
	return app, eng
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, token string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeSnapshot(t *testing.T, resp *http.Response) call.Snapshot {
	t.Helper()
	defer resp.Body.Close()
	var snap call.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

func TestStateRequiresToken(t *testing.T) {
	app, _ := newTestApp(t, "secret")

	resp := doJSON(t, app, http.MethodGet, "/state", nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/state", nil, "wrong")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/state", nil, "secret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEmptyTokenDisablesGuard(t *testing.T) {
	app, _ := newTestApp(t, "")

	resp := doJSON(t, app, http.MethodGet, "/state", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := decodeSnapshot(t, resp)
	require.True(t, snap.Joined)
	require.Len(t, snap.Participants, 3)
}

func TestPinTogglesThroughAPI(t *testing.T) {
	app, _ := newTestApp(t, "")

	resp := doJSON(t, app, http.MethodPost, "/layout/pin", PinRequest{UserID: "guest-user"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeSnapshot(t, resp)
	require.Equal(t, "guest-user", snap.Layout.PinnedParticipantID)

	resp = doJSON(t, app, http.MethodPost, "/layout/pin", PinRequest{UserID: "guest-user"}, "")
	snap = decodeSnapshot(t, resp)
	require.Equal(t, "", snap.Layout.PinnedParticipantID)
}

func TestViewModeValidation(t *testing.T) {
	app, _ := newTestApp(t, "")

	resp := doJSON(t, app, http.MethodPost, "/layout/view-mode", ViewModeRequest{Mode: "mosaic"}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/layout/view-mode", ViewModeRequest{Mode: "gallery"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeSnapshot(t, resp)
	require.Equal(t, layout.ViewGallery, snap.Arrangement.Mode)
}

func TestSelfViewDragRejectedInImmersive(t *testing.T) {
	app, eng := newTestApp(t, "")

	vp := layout.Viewport{Width: 1280, Height: 720}
	resp := doJSON(t, app, http.MethodPost, "/self-view/placed", ViewportRequest{Viewport: vp}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/layout/immersive", ToggleRequest{Enabled: true}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	before := eng.LayoutStore().Get().SelfView.Position
	resp = doJSON(t, app, http.MethodPost, "/self-view/position",
		PositionRequest{X: 5, Y: 5, Viewport: vp}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, before, eng.LayoutStore().Get().SelfView.Position)
}

func TestMediaTogglesThroughAPI(t *testing.T) {
	app, eng := newTestApp(t, "")

	require.True(t, eng.Local().AudioEnabled())
	resp := doJSON(t, app, http.MethodPost, "/media/toggle-audio", nil, "")
	snap := decodeSnapshot(t, resp)
	require.False(t, snap.AudioEnabled)

	resp = doJSON(t, app, http.MethodPost, "/media/ptt/down", nil, "")
	snap = decodeSnapshot(t, resp)
	require.True(t, snap.AudioEnabled)

	resp = doJSON(t, app, http.MethodPost, "/media/ptt/up", nil, "")
	snap = decodeSnapshot(t, resp)
	require.False(t, snap.AudioEnabled)
}

func TestListDevices(t *testing.T) {
	app, _ := newTestApp(t, "")

	resp := doJSON(t, app, http.MethodGet, "/media/devices", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var list DeviceListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Cameras, 1)
	require.Len(t, list.Microphones, 1)
}

func TestWaitingRoomEndpoints(t *testing.T) {
	app, _ := newTestApp(t, "")

	resp := doJSON(t, app, http.MethodGet, "/waiting-room/", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/waiting-room/admit-all", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoleValidation(t *testing.T) {
	app, _ := newTestApp(t, "")

	resp := doJSON(t, app, http.MethodPatch, "/participants/guest-user/role",
		RoleRequest{Role: "owner"}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
