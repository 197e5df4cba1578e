package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestIsValidPosition(t *testing.T) {
	tests := []struct {
		pos  mgl64.Vec3
		want bool
	}{
		{mgl64.Vec3{0, 100, 0}, true},
		{mgl64.Vec3{-29999999, -64, 29999999}, true},
		{mgl64.Vec3{math.NaN(), 100, 0}, false},
		{mgl64.Vec3{0, math.Inf(-1), 0}, false},
		{mgl64.Vec3{0, 100, 3.1e7}, false},
	}
	for _, tt := range tests {
		if got := IsValidPosition(tt.pos); got != tt.want {
			t.Errorf("IsValidPosition(%v) = %v, want %v", tt.pos, got, tt.want)
		}
	}
}

func TestIsValidRotation(t *testing.T) {
	if !IsValidRotation(90, -45) {
		t.Fatalf("finite rotation rejected")
	}
	if IsValidRotation(float32(math.NaN()), 0) || IsValidRotation(0, float32(math.Inf(1))) {
		t.Fatalf("non-finite rotation accepted")
	}
}

func TestIsValidChat(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"/login hunter2", true},
		{"héllo wörld", true},
		{strings.Repeat("a", MaxChatLength), true},
		{strings.Repeat("a", MaxChatLength+1), false},
		{"line\nbreak", false},
		{"§cred", false},
		{string([]byte{0xff, 0xfe}), false},
	}
	for _, tt := range tests {
		if got := IsValidChat(tt.msg); got != tt.want {
			t.Errorf("IsValidChat(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
