package call

import (
	"errors"
	"time"
)

var (
	// ErrWaiting means the join was accepted but parked in the waiting
	// room; the session completes once the host admits us.
	ErrWaiting = errors.New("parked in waiting room")

	// ErrNotJoined means the action needs a live session.
	ErrNotJoined = errors.New("not joined to a meeting")

	// ErrNotHost means the action is restricted to hosts and co-hosts.
	ErrNotHost = errors.New("host privileges required")
)

// rosterPollInterval is the fallback re-sync cadence used when realtime
// invalidation is down.
const rosterPollInterval = 10 * time.Second
