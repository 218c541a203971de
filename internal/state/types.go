package state

// Vector3 is the broadcastable vector layout shared with viewers.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// UnboundedLifetime marks a projectile that never expires on its own.
const UnboundedLifetime = -1

// CharacterState tracks the single user-controlled character.
type CharacterState struct {
	Position    Vector3 `json:"position"`
	YawDeg      float64 `json:"yaw_deg"`
	CanTeleport bool    `json:"can_teleport"`
}

// ProjectileState tracks simplified projectile kinematics for broadcasting diffs.
type ProjectileState struct {
	ID          string  `json:"id"`
	Position    Vector3 `json:"position"`
	Velocity    Vector3 `json:"velocity"`
	Radius      float64 `json:"radius"`
	CanTeleport bool    `json:"can_teleport"`
	// RemainingTicks counts down to expiry; UnboundedLifetime disables it.
	RemainingTicks int `json:"remaining_ticks"`
}

// EndpointRole distinguishes the two halves of a teleport structure.
type EndpointRole string

const (
	RoleEntrance EndpointRole = "entrance"
	RoleExit     EndpointRole = "exit"
)

// Opposite returns the role a teleporting entity is routed toward.
func (r EndpointRole) Opposite() EndpointRole {
	if r == RoleEntrance {
		return RoleExit
	}
	return RoleEntrance
}

// Valid reports whether the role is one of the supported tags.
func (r EndpointRole) Valid() bool {
	return r == RoleEntrance || r == RoleExit
}

// EndpointState describes a positioned teleport structure.
type EndpointState struct {
	ID       string       `json:"id"`
	Role     EndpointRole `json:"role"`
	Group    string       `json:"group"`
	Position Vector3      `json:"position"`
	Facing   Vector3      `json:"facing"`
}

// EventType enumerates the discrete simulation events surfaced to viewers.
type EventType string

const (
	EventTeleport          EventType = "teleport"
	EventProjectileExpired EventType = "projectile_expired"
	EventModeChanged       EventType = "mode_changed"
)

// Event records a discrete simulation occurrence for the current tick.
type Event struct {
	Type         EventType `json:"type"`
	Tick         uint64    `json:"tick"`
	EntityID     string    `json:"entity_id,omitempty"`
	FromEndpoint string    `json:"from_endpoint,omitempty"`
	ToEndpoint   string    `json:"to_endpoint,omitempty"`
	Position     Vector3   `json:"position"`
	Detail       string    `json:"detail,omitempty"`
}
