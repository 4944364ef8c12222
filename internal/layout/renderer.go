package layout

import (
	"sync"

	"meetsolis-client/internal/roster"
)

// SelfViewState is the resolved self-view window state for one frame.
type SelfViewState struct {
	Rendered     bool         `json:"rendered"`
	ForceVisible bool         `json:"forceVisible"`
	Position     Position     `json:"position"`
	Dims         Dimensions   `json:"dims"`
	Size         SelfViewSize `json:"size"`
}

// Arrangement is the concrete tile arrangement produced for one frame. Tests
// and the control API consume it directly; a rendering shell maps it onto
// actual tiles.
type Arrangement struct {
	Mode ViewMode `json:"mode"`

	// Main is set for two-person, speaker, and screen-share layouts.
	Main       *roster.Participant `json:"main,omitempty"`
	MainReason SelectionReason     `json:"mainReason,omitempty"`

	// ScreenShare is true when a screen-share takeover is active; Main then
	// carries the sharing participant and Filmstrip the regular tiles.
	ScreenShare bool `json:"screenShare"`

	// Filmstrip holds thumbnail tiles in roster order (two-person, speaker,
	// and screen-share layouts).
	Filmstrip []roster.Participant `json:"filmstrip"`

	// Grid holds the current gallery page.
	Grid  []roster.Participant `json:"grid"`
	Shape GridShape            `json:"shape"`

	Page           int  `json:"page"`
	TotalPages     int  `json:"totalPages"`
	HasNextPage    bool `json:"hasNextPage"`
	HasPrevPage    bool `json:"hasPrevPage"`
	ViewModeToggle bool `json:"viewModeToggle"`

	SelfView SelfViewState `json:"selfView"`
}

// Renderer computes tile arrangements from the roster and the shared layout
// configuration. It owns the gallery paginator so the page index survives
// across frames.
type Renderer struct {
	store     *Store
	paginator *Paginator

	// mu guards manual and viewport: the control API mutates them from
	// request handlers while Arrange reads them on every frame.
	mu       sync.RWMutex
	manual   ViewMode
	viewport func() Viewport
}

// NewRenderer builds a renderer against the shared store.
func NewRenderer(store *Store) *Renderer {
	cfg := store.Get()
	r := &Renderer{
		store:     store,
		paginator: NewPaginator(cfg.MaxTilesVisible),
		manual:    ViewGallery,
	}
	store.Subscribe(func(c Config) {
		r.paginator.SetPageSize(c.MaxTilesVisible)
	})
	return r
}

// SetManualViewMode records the user's speaker/gallery preference. Only
// those two values are accepted; anything else falls back to gallery.
func (r *Renderer) SetManualViewMode(mode ViewMode) ViewMode {
	if mode != ViewSpeaker {
		mode = ViewGallery
	}
	r.mu.Lock()
	r.manual = mode
	r.mu.Unlock()
	return mode
}

// ManualViewMode returns the stored preference.
func (r *Renderer) ManualViewMode() ViewMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manual
}

// SetViewportSource supplies the current viewport size, used to place the
// self-view when two-person mode overrides the saved position.
func (r *Renderer) SetViewportSource(fn func() Viewport) {
	r.mu.Lock()
	r.viewport = fn
	r.mu.Unlock()
}

// Paginator exposes page navigation to the control surface.
func (r *Renderer) Paginator() *Paginator {
	return r.paginator
}

// Mode resolves the current view mode for the given participant count.
func (r *Renderer) Mode(participantCount int) ViewMode {
	return SelectViewMode(participantCount, r.ManualViewMode())
}

// Arrange computes the frame's tile arrangement. Screen-share presence is
// checked before everything else and outranks the whole main-speaker
// priority chain. Stale pinned or spotlighted ids fall through silently.
func (r *Renderer) Arrange(participants []roster.Participant) Arrangement {
	cfg := r.store.Get()
	mode := SelectViewMode(len(participants), r.ManualViewMode())

	arr := Arrangement{
		Mode:           mode,
		ViewModeToggle: CanToggleViewMode(len(participants)),
	}

	if sharer, ok := findScreenSharer(participants); ok {
		arr.ScreenShare = true
		arr.Main = &sharer
		// Regular tiles exclude the sharer's own camera feed tile; the
		// share itself fills the main area.
		arr.Filmstrip = excludeSession(participants, sharer.SessionID)
		arr.SelfView = r.selfViewState(cfg, mode, false)
		return arr
	}

	switch mode {
	case ViewTwoPerson:
		r.arrangeTwoPerson(&arr, cfg, participants)
	case ViewSpeaker:
		r.arrangeSpeaker(&arr, cfg, participants)
	default:
		r.arrangeGallery(&arr, cfg, participants)
	}
	return arr
}

func (r *Renderer) arrangeTwoPerson(arr *Arrangement, cfg Config, participants []roster.Participant) {
	for i := range participants {
		if !participants[i].IsLocal {
			p := participants[i]
			arr.Main = &p
			break
		}
	}
	arr.MainReason = ReasonFallback
	arr.SelfView = r.selfViewState(cfg, ViewTwoPerson, true)
}

func (r *Renderer) arrangeSpeaker(arr *Arrangement, cfg Config, participants []roster.Participant) {
	main, ok := SelectMainSpeaker(cfg.SpotlightParticipantID, cfg.PinnedParticipantID, participants)
	if !ok {
		arr.SelfView = r.selfViewState(cfg, ViewSpeaker, false)
		return
	}
	p := main.Participant
	arr.Main = &p
	arr.MainReason = main.Reason
	// Thumbnails keep roster order; the main speaker is excluded, nothing
	// is reordered.
	arr.Filmstrip = excludeSession(participants, p.SessionID)
	arr.SelfView = r.selfViewState(cfg, ViewSpeaker, false)
}

func (r *Renderer) arrangeGallery(arr *Arrangement, cfg Config, participants []roster.Participant) {
	displayed := FilterDisplayed(participants, cfg.HideNoVideo)

	r.paginator.SetTotal(len(displayed))
	start, end := r.paginator.Window()
	page := displayed[start:end]

	arr.Grid = page
	arr.Shape = ShapeFor(len(page))
	arr.Page = r.paginator.Page()
	arr.TotalPages = r.paginator.TotalPages()
	arr.HasNextPage = r.paginator.HasNext()
	arr.HasPrevPage = r.paginator.HasPrev()
	arr.SelfView = r.selfViewState(cfg, ViewGallery, false)
}

func (r *Renderer) selfViewState(cfg Config, mode ViewMode, forceVisible bool) SelfViewState {
	st := SelfViewState{
		ForceVisible: forceVisible,
		Position:     cfg.SelfView.Position,
		Dims:         EffectiveSelfViewDims(cfg, mode),
		Size:         cfg.SelfView.Size,
	}
	// A 1:1 call always places the self-view fresh in the bottom-right
	// corner; positions saved while dragging in other modes do not carry
	// over.
	if mode == ViewTwoPerson {
		if vp, ok := r.currentViewport(); ok {
			st.Position = DefaultBottomRight(vp, st.Dims)
		}
	}
	// Hidden self-view is fully unrendered, except when forced in a 1:1
	// call: the user cannot hide themselves from a focused call.
	st.Rendered = cfg.SelfView.Visible || forceVisible
	return st
}

func (r *Renderer) currentViewport() (Viewport, bool) {
	r.mu.RLock()
	fn := r.viewport
	r.mu.RUnlock()
	if fn == nil {
		return Viewport{}, false
	}
	vp := fn()
	return vp, vp.Width > 0 && vp.Height > 0
}

// FilterDisplayed applies the hideNoVideo filter. The local participant is
// always retained, and remotes whose video state cannot be classified are
// retained as well (the filter fails open rather than hiding people).
func FilterDisplayed(participants []roster.Participant, hideNoVideo bool) []roster.Participant {
	if !hideNoVideo {
		return participants
	}
	out := make([]roster.Participant, 0, len(participants))
	for _, p := range participants {
		if p.IsLocal || p.Video != roster.VideoOff {
			out = append(out, p)
		}
	}
	return out
}

func findScreenSharer(participants []roster.Participant) (roster.Participant, bool) {
	for _, p := range participants {
		if p.IsScreenSharing() {
			return p, true
		}
	}
	return roster.Participant{}, false
}

func excludeSession(participants []roster.Participant, sessionID string) []roster.Participant {
	out := make([]roster.Participant, 0, len(participants))
	for _, p := range participants {
		if p.SessionID != sessionID {
			out = append(out, p)
		}
	}
	return out
}
