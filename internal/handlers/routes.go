package handlers

import (
	"github.com/gofiber/fiber/v2"

	"meetsolis-client/internal/middleware"
)

// Register mounts every control endpoint on the app, guarded by the static
// bearer token.
func Register(app *fiber.App, h *ControlHandler, authToken string) {
	guard := middleware.Protected(authToken)

	app.Get("/state", guard, h.GetState)
	app.Post("/leave", guard, h.Leave)

	l := app.Group("/layout", guard)
	l.Post("/pin", h.Pin)
	l.Post("/spotlight", h.Spotlight)
	l.Post("/view-mode", h.SetViewMode)
	l.Post("/immersive", h.SetImmersive)
	l.Post("/hide-no-video", h.SetHideNoVideo)
	l.Post("/max-tiles", h.SetMaxTiles)
	l.Post("/page/next", h.NextPage)
	l.Post("/page/prev", h.PrevPage)

	sv := app.Group("/self-view", guard)
	sv.Post("/visible", h.SetSelfViewVisible)
	sv.Post("/position", h.DragSelfView)
	sv.Post("/drag-end", h.EndSelfViewDrag)
	sv.Post("/size", h.CycleSelfViewSize)
	sv.Post("/placed", h.EnsureSelfViewPlaced)
	sv.Post("/resize", h.ResizeViewport)

	m := app.Group("/media", guard)
	m.Post("/toggle-audio", h.ToggleAudio)
	m.Post("/toggle-video", h.ToggleVideo)
	m.Post("/ptt/down", h.PushToTalkDown)
	m.Post("/ptt/up", h.PushToTalkUp)
	m.Post("/replace-track", h.ReplaceTrack)
	m.Get("/devices", h.ListDevices)
	m.Post("/devices/refresh", h.RefreshDevices)
	m.Post("/permission", h.RequestPermission)
	m.Post("/preferences", h.SavePreferences)

	wr := app.Group("/waiting-room", guard)
	wr.Get("/", h.ListWaiting)
	wr.Post("/admit-all", h.AdmitAll)
	wr.Post("/:id/admit", h.Admit)
	wr.Post("/:id/reject", h.Reject)

	p := app.Group("/participants", guard)
	p.Patch("/:userId/role", h.ChangeRole)
	p.Delete("/:userId", h.RemoveParticipant)
}
