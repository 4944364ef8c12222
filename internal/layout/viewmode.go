package layout

// ViewMode names the three call layouts.
type ViewMode string

const (
	ViewTwoPerson ViewMode = "two_person"
	ViewSpeaker   ViewMode = "speaker"
	ViewGallery   ViewMode = "gallery"
)

// SelectViewMode decides the layout from participant count and the user's
// manual preference. Exactly two participants (local plus one remote) always
// yields the two-person layout, overriding any manual choice. Otherwise the
// manual preference picks speaker or gallery, with gallery the default for
// anything unset or unrecognized.
func SelectViewMode(participantCount int, manual ViewMode) ViewMode {
	if participantCount == 2 {
		return ViewTwoPerson
	}
	if manual == ViewSpeaker {
		return ViewSpeaker
	}
	return ViewGallery
}

// CanToggleViewMode reports whether the speaker/gallery toggle is offered.
// It only appears from three participants up; below that the layout is
// implicit.
func CanToggleViewMode(participantCount int) bool {
	return participantCount >= 3
}
