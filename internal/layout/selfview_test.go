package layout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOriginIsPlacementSentinel(t *testing.T) {
	vp := Viewport{Width: 1920, Height: 1080}
	dims := SizeDims(SelfViewMedium)

	require.True(t, NeedsDefaultPlacement(Position{0, 0}, vp, dims))
	require.False(t, NeedsDefaultPlacement(Position{100, 100}, vp, dims))
}

func TestOffScreenNeedsDefaultPlacement(t *testing.T) {
	vp := Viewport{Width: 1280, Height: 720}
	dims := SizeDims(SelfViewMedium)

	tests := []struct {
		name string
		pos  Position
		want bool
	}{
		{"negative x", Position{-5, 100}, true},
		{"negative y", Position{100, -5}, true},
		{"past right edge", Position{vp.Width - dims.Width + 1, 100}, true},
		{"past bottom edge", Position{100, vp.Height - dims.Height + 1}, true},
		{"on screen", Position{100, 100}, false},
		{"exactly at limit", Position{vp.Width - dims.Width, vp.Height - dims.Height}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NeedsDefaultPlacement(tt.pos, vp, dims))
		})
	}
}

func TestAnchorToCornerPreservesOffset(t *testing.T) {
	dims := SizeDims(SelfViewMedium)
	prev := Viewport{Width: 1920, Height: 1080}
	next := Viewport{Width: 1280, Height: 720}

	pos := DefaultBottomRight(prev, dims)
	moved := AnchorToCorner(pos, prev, next, dims)

	prevRight := prev.Width - (pos.X + dims.Width)
	prevBottom := prev.Height - (pos.Y + dims.Height)
	nextRight := next.Width - (moved.X + dims.Width)
	nextBottom := next.Height - (moved.Y + dims.Height)

	require.Equal(t, prevRight, nextRight)
	require.Equal(t, prevBottom, nextBottom)
}

func TestAnchorToCornerClampsOnScreen(t *testing.T) {
	dims := SizeDims(SelfViewLarge)
	prev := Viewport{Width: 1920, Height: 1080}
	next := Viewport{Width: 400, Height: 300}

	// Position near the top-left whose corner offset cannot be preserved
	// in the tiny viewport.
	moved := AnchorToCorner(Position{X: 15, Y: 15}, prev, next, dims)

	require.GreaterOrEqual(t, moved.X, selfViewEdgeMargin)
	require.GreaterOrEqual(t, moved.Y, selfViewEdgeMargin)
	require.LessOrEqual(t, moved.X, next.Width-dims.Width-selfViewEdgeMargin)
	require.LessOrEqual(t, moved.Y, next.Height-dims.Height-selfViewEdgeMargin)
}

func TestEffectiveSelfViewDims(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SelfView.Size = SelfViewLarge

	require.Equal(t, selfViewDims[SelfViewLarge], EffectiveSelfViewDims(cfg, ViewGallery))
	require.Equal(t, selfViewTwoPersonDims, EffectiveSelfViewDims(cfg, ViewTwoPerson))

	cfg.ImmersiveMode = true
	// Immersive overrides everything, two-person included.
	require.Equal(t, selfViewTinyDims, EffectiveSelfViewDims(cfg, ViewGallery))
	require.Equal(t, selfViewTinyDims, EffectiveSelfViewDims(cfg, ViewTwoPerson))
}

func TestCycleSelfViewSize(t *testing.T) {
	s := NewStore(nil)

	require.Equal(t, SelfViewMedium, s.Get().SelfView.Size)
	require.Equal(t, SelfViewLarge, s.CycleSelfViewSize())
	require.Equal(t, SelfViewSmall, s.CycleSelfViewSize())
	require.Equal(t, SelfViewMedium, s.CycleSelfViewSize())
}

func TestEnsurePlacedOncePerLifetime(t *testing.T) {
	s := NewStore(nil)
	g := NewSelfViewGeometry(s, func() ViewMode { return ViewGallery })
	vp := Viewport{Width: 1920, Height: 1080}

	g.EnsurePlaced(vp)
	first := s.Get().SelfView.Position
	require.Equal(t, DefaultBottomRight(vp, SizeDims(SelfViewMedium)), first)

	// A second mount-time call must not re-place, even with a stale stored
	// position for a different viewport.
	s.SetSelfViewPosition(Position{X: 50, Y: 50})
	g.EnsurePlaced(Viewport{Width: 800, Height: 600})
	require.Equal(t, Position{X: 50, Y: 50}, s.Get().SelfView.Position)
}

func TestDragDisabledInImmersiveMode(t *testing.T) {
	s := NewStore(nil)
	g := NewSelfViewGeometry(s, func() ViewMode { return ViewGallery })
	vp := Viewport{Width: 1920, Height: 1080}

	s.SetImmersiveMode(true)
	require.False(t, g.DragTo(Position{X: 300, Y: 300}, vp))

	s.SetImmersiveMode(false)
	require.True(t, g.DragTo(Position{X: 300, Y: 300}, vp))
	require.Equal(t, Position{X: 300, Y: 300}, s.Get().SelfView.Position)
	g.EndDrag()
	require.False(t, g.Dragging())
}

func TestDragClampsToViewport(t *testing.T) {
	s := NewStore(nil)
	g := NewSelfViewGeometry(s, func() ViewMode { return ViewGallery })
	vp := Viewport{Width: 1280, Height: 720}
	dims := SizeDims(SelfViewMedium)

	g.DragTo(Position{X: -500, Y: 9999}, vp)
	got := s.Get().SelfView.Position
	require.Equal(t, selfViewEdgeMargin, got.X)
	require.Equal(t, vp.Height-dims.Height-selfViewEdgeMargin, got.Y)
}

func TestResizeDebounceAnchorsToCorner(t *testing.T) {
	s := NewStore(nil)
	g := NewSelfViewGeometry(s, func() ViewMode { return ViewGallery })
	dims := SizeDims(SelfViewMedium)

	prev := Viewport{Width: 1920, Height: 1080}
	g.EnsurePlaced(prev)
	start := s.Get().SelfView.Position

	// A burst of resize events coalesces into one reposition against the
	// final viewport.
	g.OnViewportResize(Viewport{Width: 1800, Height: 1000})
	g.OnViewportResize(Viewport{Width: 1600, Height: 900})
	next := Viewport{Width: 1280, Height: 720}
	g.OnViewportResize(next)

	require.Eventually(t, func() bool {
		return s.Get().SelfView.Position == AnchorToCorner(start, prev, next, dims)
	}, time.Second, 10*time.Millisecond)
}
