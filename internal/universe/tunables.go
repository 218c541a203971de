package universe

import (
	"encoding/json"
	"fmt"
	"sync"

	_ "embed"

	"multiverse/sim/internal/state"
)

// Tunables captures the per-mode simulation parameters. The live values a
// session runs with start from these defaults and may be patched at runtime.
type Tunables struct {
	SpeedMps          float64 `json:"speedMps"`
	YawRateDegPerSec  float64 `json:"yawRateDegPerSec"`
	ThrowSpeedMps     float64 `json:"throwSpeedMps"`
	BallRadius        float64 `json:"ballRadius"`
	WorldSize         float64 `json:"worldSize"`
	CameraDistance    float64 `json:"cameraDistance"`
	TeleportThreshold float64 `json:"teleportThreshold"`
	ExitOffset        float64 `json:"exitOffset"`
	GravityMps2       float64 `json:"gravityMps2"`
	Restitution       float64 `json:"restitution"`
	GroundFriction    float64 `json:"groundFriction"`
	BounceDamping     float64 `json:"bounceDamping"`
	RestSnapSpeed     float64 `json:"restSnapSpeed"`
	HeadHeight        float64 `json:"headHeight"`
	MinHeight         float64 `json:"minHeight"`
	WormholeSpan      float64 `json:"wormholeSpan"`
	AllowVertical     bool    `json:"allowVertical"`
	AllowThrow        bool    `json:"allowThrow"`
	AllowPlacement    bool    `json:"allowPlacement"`
	// ProjectileLifetimeTicks below zero disables expiry entirely.
	ProjectileLifetimeTicks int           `json:"projectileLifetimeTicks"`
	CharacterStart          state.Vector3 `json:"characterStart"`
	CharacterYawDeg         float64       `json:"characterYawDeg"`
}

//go:embed modes.json
var modesPayload []byte

var (
	modesOnce sync.Once
	modesData map[Mode]Tunables
	modesErr  error
)

// Defaults exposes the embedded tunables for the requested mode.
func Defaults(mode Mode) (Tunables, error) {
	modesOnce.Do(func() {
		//1.- Parse the embedded JSON payload exactly once in a threadsafe manner.
		modesErr = json.Unmarshal(modesPayload, &modesData)
	})
	//2.- Panic immediately when the manifest cannot be decoded to avoid silent divergence.
	if modesErr != nil {
		panic(modesErr)
	}
	tunables, ok := modesData[mode]
	if !ok {
		return Tunables{}, fmt.Errorf("no tunables for universe mode %q", mode)
	}
	//3.- Return a copy of the cached values so callers cannot mutate shared state.
	return tunables, nil
}

// Validate rejects parameter combinations the simulation cannot run with.
func (t Tunables) Validate() error {
	if t.SpeedMps <= 0 {
		return fmt.Errorf("speed must be positive, got %v", t.SpeedMps)
	}
	if t.BallRadius <= 0 {
		return fmt.Errorf("ball radius must be positive, got %v", t.BallRadius)
	}
	if t.WorldSize < 0 {
		return fmt.Errorf("world size must not be negative, got %v", t.WorldSize)
	}
	if t.CameraDistance <= 0 {
		return fmt.Errorf("camera distance must be positive, got %v", t.CameraDistance)
	}
	if t.TeleportThreshold <= 0 {
		return fmt.Errorf("teleport threshold must be positive, got %v", t.TeleportThreshold)
	}
	return nil
}
