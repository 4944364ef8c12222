package layout

import "meetsolis-client/internal/roster"

// SelectionReason tags why a participant was chosen as main speaker, so
// callers (and tests) can distinguish a spotlight from a speaking fallback.
type SelectionReason string

const (
	ReasonSpotlight SelectionReason = "spotlight"
	ReasonPinned    SelectionReason = "pinned"
	ReasonSpeaking  SelectionReason = "speaking"
	ReasonFallback  SelectionReason = "fallback"
)

// MainSpeaker is the result of main-speaker resolution.
type MainSpeaker struct {
	Participant roster.Participant
	Reason      SelectionReason
}

// SelectMainSpeaker resolves the main speaker for speaker view. Priority,
// first match wins:
//
//  1. spotlighted user, if currently connected
//  2. pinned user, if currently connected
//  3. first participant with IsSpeaking set, in roster order
//  4. first participant in roster order
//
// A stale spotlight or pin that no longer resolves to a connected
// participant falls through to the next rule; it is never an error. The
// second return is false only when the roster is empty.
func SelectMainSpeaker(spotlightUserID, pinnedUserID string, participants []roster.Participant) (MainSpeaker, bool) {
	if len(participants) == 0 {
		return MainSpeaker{}, false
	}

	if spotlightUserID != "" {
		if p, ok := findByUser(participants, spotlightUserID); ok {
			return MainSpeaker{Participant: p, Reason: ReasonSpotlight}, true
		}
	}

	if pinnedUserID != "" {
		if p, ok := findByUser(participants, pinnedUserID); ok {
			return MainSpeaker{Participant: p, Reason: ReasonPinned}, true
		}
	}

	for _, p := range participants {
		if p.IsSpeaking {
			return MainSpeaker{Participant: p, Reason: ReasonSpeaking}, true
		}
	}

	return MainSpeaker{Participant: participants[0], Reason: ReasonFallback}, true
}

func findByUser(participants []roster.Participant, userID string) (roster.Participant, bool) {
	for _, p := range participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return roster.Participant{}, false
}
