package session

import "strings"

// Movement selects how a session keeps players in place.
type Movement int

const (
	// MovementAntiFall disables falling after a delay and snaps players
	// back up to the altitude they settled at.
	MovementAntiFall Movement = iota
	// MovementAntiFallNative asks the engine to disable falling at spawn
	// and enforces altitude immediately.
	MovementAntiFallNative
	// MovementConfine pins players to the spawn position.
	MovementConfine
	MovementNone
)

const (
	holdTolerance  = 0.02
	confineEpsilon = 0.1
)

func (m Movement) String() string {
	switch m {
	case MovementAntiFallNative:
		return "anti-fall-native"
	case MovementConfine:
		return "confine"
	case MovementNone:
		return "none"
	default:
		return "anti-fall"
	}
}

func ParseMovement(s string) (Movement, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anti-fall", "antifall", "anti_fall":
		return MovementAntiFall, true
	case "anti-fall-native", "native", "anti_fall_native":
		return MovementAntiFallNative, true
	case "confine", "lock":
		return MovementConfine, true
	case "none", "off":
		return MovementNone, true
	default:
		return MovementAntiFall, false
	}
}
