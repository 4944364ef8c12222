// Package handlers provides the HTTP handlers for the local control API.
// The embedding shell (desktop app, scripting, tests) drives the call
// engine through these endpoints and renders the returned state.
package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"meetsolis-client/internal/api"
	"meetsolis-client/internal/call"
	"meetsolis-client/internal/layout"
	"meetsolis-client/internal/media"
)

// ErrorResponse is the error body shared by all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PinRequest addresses a participant by transport identity.
type PinRequest struct {
	UserID string `json:"userId" example:"user-42"`
}

// ViewModeRequest selects a manual view mode.
type ViewModeRequest struct {
	Mode string `json:"mode" example:"speaker"`
}

// ToggleRequest carries a boolean switch.
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// MaxTilesRequest sets the gallery page size.
type MaxTilesRequest struct {
	Count int `json:"count" example:"16"`
}

// PositionRequest moves the self-view tile inside the given viewport.
type PositionRequest struct {
	X        int             `json:"x"`
	Y        int             `json:"y"`
	Viewport layout.Viewport `json:"viewport"`
}

// ViewportRequest reports the embedding window size.
type ViewportRequest struct {
	Viewport layout.Viewport `json:"viewport"`
}

// ReplaceTrackRequest swaps one capture device mid-call.
type ReplaceTrackRequest struct {
	Kind     string `json:"kind" example:"audio"`
	DeviceID string `json:"deviceId"`
}

// PreferencesRequest updates the persisted device selection; omitted fields
// are left unchanged.
type PreferencesRequest struct {
	CameraID     *string `json:"cameraId,omitempty"`
	MicrophoneID *string `json:"microphoneId,omitempty"`
	SpeakerID    *string `json:"speakerId,omitempty"`
}

// RoleRequest changes a participant's role.
type RoleRequest struct {
	Role string `json:"role" example:"co-host"`
}

// ControlHandler drives one call engine.
type ControlHandler struct {
	engine *call.Engine
}

// NewControlHandler builds the handler set for the engine.
func NewControlHandler(engine *call.Engine) *ControlHandler {
	return &ControlHandler{engine: engine}
}

// @Summary Current client state
// @Description Returns the full state snapshot: roster, arrangement, media flags
// @Tags state
// @Produce json
// @Success 200 {object} call.Snapshot
// @Router /state [get]
func (h *ControlHandler) GetState(c *fiber.Ctx) error {
	return c.JSON(h.engine.Snapshot())
}

// @Summary Pin or unpin a participant
// @Tags layout
// @Accept json
// @Produce json
// @Param request body PinRequest true "Participant to pin; pinning the same one again unpins"
// @Success 200 {object} call.Snapshot
// @Failure 400 {object} ErrorResponse
// @Router /layout/pin [post]
func (h *ControlHandler) Pin(c *fiber.Ctx) error {
	var req PinRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	h.engine.LayoutStore().SetPinnedParticipant(req.UserID)
	return c.JSON(h.engine.Snapshot())
}

// @Summary Toggle the meeting spotlight
// @Description Host only. Spotlighting the current spotlightee clears it.
// @Tags layout
// @Accept json
// @Produce json
// @Param request body PinRequest true "Participant to spotlight"
// @Success 200 {object} call.Snapshot
// @Failure 403 {object} ErrorResponse
// @Router /layout/spotlight [post]
func (h *ControlHandler) Spotlight(c *fiber.Ctx) error {
	var req PinRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.engine.ToggleSpotlight(c.Context(), req.UserID); err != nil {
		return engineError(c, err)
	}
	return c.JSON(h.engine.Snapshot())
}

// @Summary Set the manual view mode
// @Tags layout
// @Accept json
// @Produce json
// @Param request body ViewModeRequest true "speaker or gallery"
// @Success 200 {object} call.Snapshot
// @Failure 400 {object} ErrorResponse
// @Router /layout/view-mode [post]
func (h *ControlHandler) SetViewMode(c *fiber.Ctx) error {
	var req ViewModeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	mode := layout.ViewMode(req.Mode)
	if mode != layout.ViewSpeaker && mode != layout.ViewGallery {
		return badRequest(c, "Unknown view mode")
	}
	h.engine.Renderer().SetManualViewMode(mode)
	return c.JSON(h.engine.Snapshot())
}

// @Summary Toggle immersive mode
// @Tags layout
// @Accept json
// @Produce json
// @Param request body ToggleRequest true "Immersive on or off"
// @Success 200 {object} call.Snapshot
// @Router /layout/immersive [post]
func (h *ControlHandler) SetImmersive(c *fiber.Ctx) error {
	var req ToggleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	h.engine.LayoutStore().SetImmersiveMode(req.Enabled)
	return c.JSON(h.engine.Snapshot())
}

// @Summary Hide or show camera-off participants in the gallery
// @Tags layout
// @Accept json
// @Produce json
// @Param request body ToggleRequest true "Filter on or off"
// @Success 200 {object} call.Snapshot
// @Router /layout/hide-no-video [post]
func (h *ControlHandler) SetHideNoVideo(c *fiber.Ctx) error {
	var req ToggleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	h.engine.LayoutStore().SetHideNoVideo(req.Enabled)
	return c.JSON(h.engine.Snapshot())
}

// @Summary Set the gallery page size
// @Tags layout
// @Accept json
// @Produce json
// @Param request body MaxTilesRequest true "Tiles per page"
// @Success 200 {object} call.Snapshot
// @Router /layout/max-tiles [post]
func (h *ControlHandler) SetMaxTiles(c *fiber.Ctx) error {
	var req MaxTilesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	h.engine.LayoutStore().SetMaxTilesVisible(req.Count)
	return c.JSON(h.engine.Snapshot())
}

// @Summary Next gallery page
// @Tags layout
// @Produce json
// @Success 200 {object} call.Snapshot
// @Router /layout/page/next [post]
func (h *ControlHandler) NextPage(c *fiber.Ctx) error {
	h.engine.Renderer().Paginator().Next()
	return c.JSON(h.engine.Snapshot())
}

// @Summary Previous gallery page
// @Tags layout
// @Produce json
// @Success 200 {object} call.Snapshot
// @Router /layout/page/prev [post]
func (h *ControlHandler) PrevPage(c *fiber.Ctx) error {
	h.engine.Renderer().Paginator().Prev()
	return c.JSON(h.engine.Snapshot())
}

// @Summary Show or hide the self-view tile
// @Tags self-view
// @Accept json
// @Produce json
// @Param request body ToggleRequest true "Visible on or off"
// @Success 200 {object} call.Snapshot
// @Router /self-view/visible [post]
func (h *ControlHandler) SetSelfViewVisible(c *fiber.Ctx) error {
	var req ToggleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	h.engine.LayoutStore().SetSelfViewVisible(req.Enabled)
	return c.JSON(h.engine.Snapshot())
}

// @Summary Drag the self-view tile
// @Description Rejected in immersive mode; the position is clamped to the viewport
// @Tags self-view
// @Accept json
// @Produce json
// @Param request body PositionRequest true "Target position and current viewport"
// @Success 200 {object} call.Snapshot
// @Router /self-view/position [post]
func (h *ControlHandler) DragSelfView(c *fiber.Ctx) error {
	var req PositionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	h.engine.SelfView().DragTo(layout.Position{X: req.X, Y: req.Y}, req.Viewport)
	return c.JSON(h.engine.Snapshot())
}

// @Summary Finish a self-view drag
// @Tags self-view
// @Produce json
// @Success 200 {object} call.Snapshot
// @Router /self-view/drag-end [post]
func (h *ControlHandler) EndSelfViewDrag(c *fiber.Ctx) error {
	h.engine.SelfView().EndDrag()
	return c.JSON(h.engine.Snapshot())
}

// @Summary Cycle the self-view size
// @Description small, medium, large, then back to small
// @Tags self-view
// @Produce json
// @Success 200 {object} call.Snapshot
// @Router /self-view/size [post]
func (h *ControlHandler) CycleSelfViewSize(c *fiber.Ctx) error {
	h.engine.LayoutStore().CycleSelfViewSize()
	return c.JSON(h.engine.Snapshot())
}

// @Summary Report the initial viewport
// @Description Places the self-view at its default corner on first report
// @Tags self-view
// @Accept json
// @Produce json
// @Param request body ViewportRequest true "Window size"
// @Success 200 {object} call.Snapshot
// @Router /self-view/placed [post]
func (h *ControlHandler) EnsureSelfViewPlaced(c *fiber.Ctx) error {
	var req ViewportRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	h.engine.SelfView().EnsurePlaced(req.Viewport)
	return c.JSON(h.engine.Snapshot())
}

// @Summary Report a viewport resize
// @Description Re-anchors the self-view to its corner, debounced
// @Tags self-view
// @Accept json
// @Produce json
// @Param request body ViewportRequest true "New window size"
// @Success 200 {object} call.Snapshot
// @Router /self-view/resize [post]
func (h *ControlHandler) ResizeViewport(c *fiber.Ctx) error {
	var req ViewportRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	h.engine.SelfView().OnViewportResize(req.Viewport)
	return c.JSON(h.engine.Snapshot())
}

// @Summary Toggle the microphone
// @Tags media
// @Produce json
// @Success 200 {object} call.Snapshot
// @Router /media/toggle-audio [post]
func (h *ControlHandler) ToggleAudio(c *fiber.Ctx) error {
	h.engine.Local().ToggleAudio()
	return c.JSON(h.engine.Snapshot())
}

// @Summary Toggle the camera
// @Tags media
// @Produce json
// @Success 200 {object} call.Snapshot
// @Router /media/toggle-video [post]
func (h *ControlHandler) ToggleVideo(c *fiber.Ctx) error {
	h.engine.Local().ToggleVideo()
	return c.JSON(h.engine.Snapshot())
}

// @Summary Push-to-talk key down
// @Tags media
// @Produce json
// @Success 200 {object} call.Snapshot
// @Router /media/ptt/down [post]
func (h *ControlHandler) PushToTalkDown(c *fiber.Ctx) error {
	h.engine.PushToTalkDown()
	return c.JSON(h.engine.Snapshot())
}

// @Summary Push-to-talk key up
// @Tags media
// @Produce json
// @Success 200 {object} call.Snapshot
// @Router /media/ptt/up [post]
func (h *ControlHandler) PushToTalkUp(c *fiber.Ctx) error {
	h.engine.PushToTalkUp()
	return c.JSON(h.engine.Snapshot())
}

// @Summary Swap a capture device mid-call
// @Tags media
// @Accept json
// @Produce json
// @Param request body ReplaceTrackRequest true "Track kind and target device"
// @Success 200 {object} call.Snapshot
// @Failure 400 {object} ErrorResponse
// @Router /media/replace-track [post]
func (h *ControlHandler) ReplaceTrack(c *fiber.Ctx) error {
	var req ReplaceTrackRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	kind := media.TrackKind(req.Kind)
	if kind != media.TrackAudio && kind != media.TrackVideo {
		return badRequest(c, "Unknown track kind")
	}
	if err := h.engine.Local().ReplaceTrack(c.Context(), kind, req.DeviceID); err != nil {
		log.Warn().Err(err).Str("kind", req.Kind).Msg("Track replacement failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(h.engine.Snapshot())
}

// DeviceListResponse groups the enumerated devices by kind.
type DeviceListResponse struct {
	Cameras     []media.Device    `json:"cameras"`
	Microphones []media.Device    `json:"microphones"`
	Speakers    []media.Device    `json:"speakers"`
	Preferences media.Preferences `json:"preferences"`
}

// @Summary List capture devices
// @Tags media
// @Produce json
// @Success 200 {object} DeviceListResponse
// @Router /media/devices [get]
func (h *ControlHandler) ListDevices(c *fiber.Ctx) error {
	cams, mics, speakers := h.engine.Devices().Devices()
	return c.JSON(DeviceListResponse{
		Cameras:     cams,
		Microphones: mics,
		Speakers:    speakers,
		Preferences: h.engine.Devices().Preferences(),
	})
}

// @Summary Refresh the device list
// @Tags media
// @Produce json
// @Success 200 {object} DeviceListResponse
// @Router /media/devices/refresh [post]
func (h *ControlHandler) RefreshDevices(c *fiber.Ctx) error {
	if err := h.engine.Devices().Refresh(c.Context()); err != nil {
		log.Warn().Err(err).Msg("Device refresh failed, serving last known list")
	}
	return h.ListDevices(c)
}

// @Summary Request device permission
// @Description Probes capture access so device labels become available
// @Tags media
// @Produce json
// @Success 200 {object} DeviceListResponse
// @Failure 403 {object} ErrorResponse
// @Router /media/permission [post]
func (h *ControlHandler) RequestPermission(c *fiber.Ctx) error {
	if err := h.engine.Devices().RequestPermission(c.Context()); err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	}
	return h.ListDevices(c)
}

// @Summary Save device preferences
// @Tags media
// @Accept json
// @Produce json
// @Param request body PreferencesRequest true "Partial preference update"
// @Success 200 {object} DeviceListResponse
// @Router /media/preferences [post]
func (h *ControlHandler) SavePreferences(c *fiber.Ctx) error {
	var req PreferencesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	h.engine.Devices().SavePreferences(media.PreferenceUpdate{
		CameraID:     req.CameraID,
		MicrophoneID: req.MicrophoneID,
		SpeakerID:    req.SpeakerID,
	})
	return h.ListDevices(c)
}

// @Summary List waiting participants
// @Description Host only
// @Tags waiting-room
// @Produce json
// @Success 200 {array} api.WaitingParticipant
// @Failure 403 {object} ErrorResponse
// @Router /waiting-room [get]
func (h *ControlHandler) ListWaiting(c *fiber.Ctx) error {
	wr := h.engine.WaitingRoom()
	if wr == nil {
		return forbidden(c)
	}
	return c.JSON(wr.Waiting())
}

// @Summary Admit a waiting participant
// @Tags waiting-room
// @Produce json
// @Param id path string true "Waiting entry id"
// @Success 200 {array} api.WaitingParticipant
// @Failure 403 {object} ErrorResponse
// @Router /waiting-room/{id}/admit [post]
func (h *ControlHandler) Admit(c *fiber.Ctx) error {
	wr := h.engine.WaitingRoom()
	if wr == nil {
		return forbidden(c)
	}
	if err := wr.Admit(c.Context(), c.Params("id")); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(wr.Waiting())
}

// @Summary Reject a waiting participant
// @Tags waiting-room
// @Produce json
// @Param id path string true "Waiting entry id"
// @Success 200 {array} api.WaitingParticipant
// @Failure 403 {object} ErrorResponse
// @Router /waiting-room/{id}/reject [post]
func (h *ControlHandler) Reject(c *fiber.Ctx) error {
	wr := h.engine.WaitingRoom()
	if wr == nil {
		return forbidden(c)
	}
	if err := wr.Reject(c.Context(), c.Params("id")); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(wr.Waiting())
}

// @Summary Admit everyone currently waiting
// @Tags waiting-room
// @Produce json
// @Success 200 {array} api.WaitingParticipant
// @Failure 403 {object} ErrorResponse
// @Router /waiting-room/admit-all [post]
func (h *ControlHandler) AdmitAll(c *fiber.Ctx) error {
	wr := h.engine.WaitingRoom()
	if wr == nil {
		return forbidden(c)
	}
	if err := wr.AdmitAll(c.Context()); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(wr.Waiting())
}

// @Summary Change a participant's role
// @Description Host only
// @Tags roster
// @Accept json
// @Produce json
// @Param userId path string true "Participant user id"
// @Param request body RoleRequest true "New role"
// @Success 200 {object} call.Snapshot
// @Failure 403 {object} ErrorResponse
// @Router /participants/{userId}/role [patch]
func (h *ControlHandler) ChangeRole(c *fiber.Ctx) error {
	var req RoleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	role := api.Role(req.Role)
	if role != api.RoleCoHost && role != api.RoleParticipant {
		return badRequest(c, "Unknown role")
	}
	if err := h.engine.ChangeRole(c.Context(), c.Params("userId"), role); err != nil {
		return engineError(c, err)
	}
	return c.JSON(h.engine.Snapshot())
}

// @Summary Remove a participant from the meeting
// @Description Host only
// @Tags roster
// @Produce json
// @Param userId path string true "Participant user id"
// @Success 200 {object} call.Snapshot
// @Failure 403 {object} ErrorResponse
// @Router /participants/{userId} [delete]
func (h *ControlHandler) RemoveParticipant(c *fiber.Ctx) error {
	if err := h.engine.RemoveParticipant(c.Context(), c.Params("userId")); err != nil {
		return engineError(c, err)
	}
	return c.JSON(h.engine.Snapshot())
}

// @Summary Leave the meeting
// @Tags state
// @Produce json
// @Success 200 {object} call.Snapshot
// @Router /leave [post]
func (h *ControlHandler) Leave(c *fiber.Ctx) error {
	h.engine.Leave()
	return c.JSON(h.engine.Snapshot())
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func forbidden(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Host privileges required"})
}

func engineError(c *fiber.Ctx, err error) error {
	status := fiber.StatusBadGateway
	switch err {
	case call.ErrNotHost:
		status = fiber.StatusForbidden
	case call.ErrNotJoined:
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
