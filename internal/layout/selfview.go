package layout

import (
	"sync"
	"time"

	"github.com/bep/debounce"
)

// Viewport is the visible area the self-view floats inside, in pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Dimensions is a self-view tile size in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Named self-view sizes. Tiny is forced while immersive mode is active and
// the two-person size is used only when the self-view is force-visible in a
// 1:1 call; neither participates in the small/medium/large cycle.
var (
	selfViewDims = map[SelfViewSize]Dimensions{
		SelfViewSmall:  {Width: 160, Height: 90},
		SelfViewMedium: {Width: 240, Height: 135},
		SelfViewLarge:  {Width: 320, Height: 180},
	}
	selfViewTinyDims      = Dimensions{Width: 96, Height: 54}
	selfViewTwoPersonDims = Dimensions{Width: 256, Height: 144}
)

const (
	selfViewEdgeMargin    = 10
	selfViewDefaultMargin = 20

	resizeDebounce = 100 * time.Millisecond
)

// SizeDims returns the pixel dimensions for a named size.
func SizeDims(size SelfViewSize) Dimensions {
	if d, ok := selfViewDims[size]; ok {
		return d
	}
	return selfViewDims[SelfViewMedium]
}

// EffectiveSelfViewDims resolves the rendered self-view size. Immersive mode
// always overrides with the tiny size; otherwise two-person mode uses its
// fixed size; otherwise the configured size applies.
func EffectiveSelfViewDims(cfg Config, mode ViewMode) Dimensions {
	if cfg.ImmersiveMode {
		return selfViewTinyDims
	}
	if mode == ViewTwoPerson {
		return selfViewTwoPersonDims
	}
	return SizeDims(cfg.SelfView.Size)
}

// DefaultBottomRight computes the default placement in the bottom-right
// corner of the viewport.
func DefaultBottomRight(vp Viewport, dims Dimensions) Position {
	return Position{
		X: vp.Width - dims.Width - selfViewDefaultMargin,
		Y: vp.Height - dims.Height - selfViewDefaultMargin,
	}
}

// NeedsDefaultPlacement reports whether a stored position must be replaced
// by a computed default: the (0,0) sentinel, or anything off-screen for the
// current viewport.
func NeedsDefaultPlacement(pos Position, vp Viewport, dims Dimensions) bool {
	if pos.IsOrigin() {
		return true
	}
	if pos.X < 0 || pos.Y < 0 {
		return true
	}
	if pos.X > vp.Width-dims.Width || pos.Y > vp.Height-dims.Height {
		return true
	}
	return false
}

// ClampToViewport clamps pos into [margin, viewport-dim-margin] on both axes.
func ClampToViewport(pos Position, vp Viewport, dims Dimensions) Position {
	maxX := vp.Width - dims.Width - selfViewEdgeMargin
	maxY := vp.Height - dims.Height - selfViewEdgeMargin
	return Position{
		X: clamp(pos.X, selfViewEdgeMargin, maxX),
		Y: clamp(pos.Y, selfViewEdgeMargin, maxY),
	}
}

// AnchorToCorner recomputes a position after a viewport resize so the
// distance from the bottom-right corner is preserved, then clamps the result
// on-screen.
func AnchorToCorner(pos Position, prev, next Viewport, dims Dimensions) Position {
	offsetRight := prev.Width - (pos.X + dims.Width)
	offsetBottom := prev.Height - (pos.Y + dims.Height)
	moved := Position{
		X: next.Width - dims.Width - offsetRight,
		Y: next.Height - dims.Height - offsetBottom,
	}
	return ClampToViewport(moved, next, dims)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SelfViewGeometry manages the floating window's placement: one-time default
// placement, debounced corner-anchored resize, and drag with bounds. All
// position writes go through the Store so they persist.
type SelfViewGeometry struct {
	mu sync.Mutex

	store *Store
	mode  func() ViewMode

	// lastKnownViewport is only updated inside the debounced resize
	// handler, so the anchor math always sees the size the current
	// position was computed against.
	lastKnownViewport Viewport
	placed            bool
	dragging          bool

	debounced func(func())
	pending   Viewport
}

// NewSelfViewGeometry wires geometry to the layout store. modeFn supplies
// the current view mode so size overrides resolve at call time.
func NewSelfViewGeometry(store *Store, modeFn func() ViewMode) *SelfViewGeometry {
	return &SelfViewGeometry{
		store:     store,
		mode:      modeFn,
		debounced: debounce.New(resizeDebounce),
	}
}

func (g *SelfViewGeometry) dims(cfg Config) Dimensions {
	mode := ViewGallery
	if g.mode != nil {
		mode = g.mode()
	}
	return EffectiveSelfViewDims(cfg, mode)
}

// EnsurePlaced applies default bottom-right placement exactly once per
// geometry lifetime, and only when the stored position is the origin
// sentinel or off-screen for the given viewport.
func (g *SelfViewGeometry) EnsurePlaced(vp Viewport) {
	g.mu.Lock()
	if g.placed {
		g.mu.Unlock()
		return
	}
	g.placed = true
	g.lastKnownViewport = vp
	g.mu.Unlock()

	cfg := g.store.Get()
	dims := g.dims(cfg)
	if NeedsDefaultPlacement(cfg.SelfView.Position, vp, dims) {
		g.store.SetSelfViewPosition(DefaultBottomRight(vp, dims))
	}
}

// Viewport returns the most recently reported viewport size, preferring a
// resize that has not applied yet over the last anchored one.
func (g *SelfViewGeometry) Viewport() Viewport {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending.Width > 0 && g.pending.Height > 0 {
		return g.pending
	}
	return g.lastKnownViewport
}

// OnViewportResize schedules a debounced (~100ms) reposition that keeps the
// self-view anchored to the bottom-right corner.
func (g *SelfViewGeometry) OnViewportResize(vp Viewport) {
	g.mu.Lock()
	g.pending = vp
	g.mu.Unlock()

	g.debounced(g.applyResize)
}

func (g *SelfViewGeometry) applyResize() {
	g.mu.Lock()
	next := g.pending
	prev := g.lastKnownViewport
	g.lastKnownViewport = next
	g.mu.Unlock()

	if prev.Width == 0 || prev.Height == 0 || next == prev {
		return
	}

	cfg := g.store.Get()
	dims := g.dims(cfg)
	g.store.SetSelfViewPosition(AnchorToCorner(cfg.SelfView.Position, prev, next, dims))
}

// DragTo moves the self-view while dragging, clamped to the viewport.
// Dragging is disabled entirely while immersive mode is active.
func (g *SelfViewGeometry) DragTo(pos Position, vp Viewport) bool {
	cfg := g.store.Get()
	if cfg.ImmersiveMode {
		return false
	}

	g.mu.Lock()
	g.dragging = true
	g.mu.Unlock()

	g.store.SetSelfViewPosition(ClampToViewport(pos, vp, g.dims(cfg)))
	return true
}

// EndDrag finishes a drag gesture. The final position was already persisted
// by the last DragTo.
func (g *SelfViewGeometry) EndDrag() {
	g.mu.Lock()
	g.dragging = false
	g.mu.Unlock()
}

// Dragging reports whether a drag gesture is in flight.
func (g *SelfViewGeometry) Dragging() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dragging
}
