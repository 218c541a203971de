package universe

import (
	"fmt"
	"strings"
)

// Mode identifies one universe variant with its own topology and tunables.
type Mode string

const (
	// ModeTunnel is the traveling wormhole tunnel: unbounded space, vertical
	// movement allowed, projectiles expire after a fixed lifetime.
	ModeTunnel Mode = "tunnel"
	// ModeWormhole hosts a fixed entrance/exit wormhole pair.
	ModeWormhole Mode = "wormhole"
	// ModePortals is the multi-portal sandbox with user-placed endpoints.
	ModePortals Mode = "portals"
	// ModeInfinity is the toroidal world where the horizontal axes wrap.
	ModeInfinity Mode = "infinity"
)

// Modes lists every supported universe variant in presentation order.
func Modes() []Mode {
	return []Mode{ModeTunnel, ModeWormhole, ModePortals, ModeInfinity}
}

// Valid reports whether the mode is one of the supported variants.
func (m Mode) Valid() bool {
	switch m {
	case ModeTunnel, ModeWormhole, ModePortals, ModeInfinity:
		return true
	default:
		return false
	}
}

// String returns the wire representation of the mode.
func (m Mode) String() string { return string(m) }

// ParseMode normalizes and validates a textual mode identifier.
func ParseMode(raw string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if !mode.Valid() {
		return "", fmt.Errorf("unknown universe mode %q", raw)
	}
	return mode, nil
}
