// Package validation rejects client input no honest client can produce.
package validation

import (
	"math"
	"unicode/utf8"

	"github.com/go-gl/mathgl/mgl64"
)

// MaxCoordinate is the largest absolute coordinate a client may report.
const MaxCoordinate = 3.0e7

// MaxChatLength is the longest chat line, in runes, a client may send.
const MaxChatLength = 256

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func IsValidPosition(pos mgl64.Vec3) bool {
	for _, v := range pos {
		if !isFinite(v) || math.Abs(v) > MaxCoordinate {
			return false
		}
	}
	return true
}

func IsValidRotation(yaw, pitch float32) bool {
	return isFinite(float64(yaw)) && isFinite(float64(pitch))
}

// IsValidChat reports whether message is valid UTF-8 within MaxChatLength
// and free of control characters and the legacy section sign.
func IsValidChat(message string) bool {
	if !utf8.ValidString(message) || utf8.RuneCountInString(message) > MaxChatLength {
		return false
	}
	for _, r := range message {
		if r < 0x20 || r == 0x7f || r == '§' {
			return false
		}
	}
	return true
}
