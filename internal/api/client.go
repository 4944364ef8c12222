// Package api is the client for the MeetSolis REST backend. The backend owns
// meeting, participant-role, spotlight, and waiting-room state; this client
// surfaces its JSON error messages verbatim so the UI can show them.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Role is a participant's meeting role as recorded by the backend.
type Role string

const (
	RoleHost        Role = "host"
	RoleCoHost      Role = "co-host"
	RoleParticipant Role = "participant"
)

// Meeting is the backend meeting record. SpotlightParticipantID holds a
// participant database id, not a user id; callers translate before comparing
// against roster identities.
type Meeting struct {
	ID                     string              `json:"id"`
	HostID                 string              `json:"host_id"`
	Status                 string              `json:"status"`
	WaitingRoomEnabled     bool                `json:"waiting_room_enabled"`
	SpotlightParticipantID string              `json:"spotlight_participant_id"`
	Participants           []ParticipantRecord `json:"participants"`
}

// ParticipantRecord is one row of the backend participants table. ID is the
// database primary key REST actions are addressed by; UserID is the identity
// the video SDK reports.
type ParticipantRecord struct {
	ID          string    `json:"id"`
	MeetingID   string    `json:"meeting_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// WaitingParticipant is one waiting-room entry.
type WaitingParticipant struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
	Status      string    `json:"status"` // waiting | admitted | rejected
}

// JoinResult is the response to a join request.
type JoinResult struct {
	Meeting     Meeting           `json:"meeting"`
	Participant ParticipantRecord `json:"participant"`
	Waiting     bool              `json:"waiting"`
}

// Error is a non-2xx backend response. Message carries the server-provided
// text when present so it can be shown to the user unchanged.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend request failed with status %d", e.Status)
}

// Client calls the MeetSolis backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a Client for the given base URL and bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// JoinMeeting registers the current user in the meeting. When the meeting has
// a waiting room enabled the result reports Waiting=true and no call token
// should be requested yet.
func (c *Client) JoinMeeting(ctx context.Context, meetingID string) (*JoinResult, error) {
	var out JoinResult
	if err := c.do(ctx, http.MethodPost, "/api/meetings/"+meetingID+"/join", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMeeting fetches the meeting record with its participant rows.
func (c *Client) GetMeeting(ctx context.Context, meetingID string) (*Meeting, error) {
	var out Meeting
	if err := c.do(ctx, http.MethodGet, "/api/meetings/"+meetingID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCallToken fetches the call-auth token used to connect to the video SFU.
func (c *Client) GetCallToken(ctx context.Context, meetingID string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/meetings/"+meetingID+"/token", nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// SetSpotlight writes the spotlight participant. participantDbID is the
// database id of the participant row, or empty to clear the spotlight.
func (c *Client) SetSpotlight(ctx context.Context, meetingID, participantDbID string) error {
	body := map[string]any{"spotlight_participant_id": nil}
	if participantDbID != "" {
		body["spotlight_participant_id"] = participantDbID
	}
	return c.do(ctx, http.MethodPatch, "/api/meetings/"+meetingID+"/spotlight", body, nil)
}

// ChangeRole updates a participant's role.
func (c *Client) ChangeRole(ctx context.Context, meetingID, participantDbID string, role Role) error {
	body := map[string]any{"role": role}
	return c.do(ctx, http.MethodPatch, "/api/meetings/"+meetingID+"/participants/"+participantDbID, body, nil)
}

// RemoveParticipant removes a participant from the meeting.
func (c *Client) RemoveParticipant(ctx context.Context, meetingID, participantDbID string) error {
	return c.do(ctx, http.MethodDelete, "/api/meetings/"+meetingID+"/participants/"+participantDbID, nil, nil)
}

// ListWaiting returns the meeting's current waiting-room entries.
func (c *Client) ListWaiting(ctx context.Context, meetingID string) ([]WaitingParticipant, error) {
	var out []WaitingParticipant
	if err := c.do(ctx, http.MethodGet, "/api/meetings/"+meetingID+"/waiting-room", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountWaiting returns the number of participants currently waiting.
func (c *Client) CountWaiting(ctx context.Context, meetingID string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/meetings/"+meetingID+"/waiting-room/count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Admit lets a waiting participant into the meeting.
func (c *Client) Admit(ctx context.Context, meetingID, waitingID string) error {
	return c.do(ctx, http.MethodPost, "/api/meetings/"+meetingID+"/waiting-room/"+waitingID+"/admit", nil, nil)
}

// Reject turns a waiting participant away.
func (c *Client) Reject(ctx context.Context, meetingID, waitingID string) error {
	return c.do(ctx, http.MethodPost, "/api/meetings/"+meetingID+"/waiting-room/"+waitingID+"/reject", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to decode backend response")
		return err
	}
	return nil
}

func parseError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return apiErr
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Message != "" {
			apiErr.Message = payload.Message
		} else if payload.Error != "" {
			apiErr.Message = payload.Error
		}
	}
	return apiErr
}
