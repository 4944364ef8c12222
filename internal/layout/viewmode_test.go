package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTwoParticipantsAlwaysTwoPerson(t *testing.T) {
	for _, manual := range []ViewMode{ViewGallery, ViewSpeaker, ViewTwoPerson, ""} {
		require.Equal(t, ViewTwoPerson, SelectViewMode(2, manual), "manual=%q", manual)
	}
}

func TestManualToggleOutsideTwoPerson(t *testing.T) {
	for _, count := range []int{0, 1, 3, 5, 30} {
		require.Equal(t, ViewSpeaker, SelectViewMode(count, ViewSpeaker), "count=%d", count)
		require.Equal(t, ViewGallery, SelectViewMode(count, ViewGallery), "count=%d", count)
		require.Equal(t, ViewGallery, SelectViewMode(count, ""), "count=%d", count)
	}
}

func TestCanToggleViewMode(t *testing.T) {
	require.False(t, CanToggleViewMode(0))
	require.False(t, CanToggleViewMode(1))
	require.False(t, CanToggleViewMode(2))
	require.True(t, CanToggleViewMode(3))
	require.True(t, CanToggleViewMode(20))
}

func TestManualViewModeOnlyTwoValuesReachable(t *testing.T) {
	r := NewRenderer(NewStore(nil))

	require.Equal(t, ViewSpeaker, r.SetManualViewMode(ViewSpeaker))
	require.Equal(t, ViewGallery, r.SetManualViewMode(ViewGallery))
	// Unknown values collapse to gallery.
	require.Equal(t, ViewGallery, r.SetManualViewMode("cinema"))
	require.Equal(t, ViewGallery, r.SetManualViewMode(ViewTwoPerson))

	// Toggling is idempotent.
	r.SetManualViewMode(ViewSpeaker)
	require.Equal(t, ViewSpeaker, r.SetManualViewMode(ViewSpeaker))
}
