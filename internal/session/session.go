package session

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"multiverse/sim/internal/logging"
	"multiverse/sim/internal/physics"
	"multiverse/sim/internal/state"
	"multiverse/sim/internal/teleport"
	"multiverse/sim/internal/universe"
)

// CharacterEntityID keys the character in teleport cooldowns and events.
const CharacterEntityID = "character"

var (
	// ErrThrowDisallowed is returned when the active mode forbids throwing.
	ErrThrowDisallowed = errors.New("universe mode does not allow throwing")
	// ErrPlacementDisallowed is returned when the active mode forbids
	// placing endpoints; only the multi-portal sandbox supports it.
	ErrPlacementDisallowed = errors.New("universe mode does not allow endpoint placement")
	// ErrInvalidConfig flags a rejected configuration patch; no field of a
	// rejected patch is applied.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Session owns the canonical simulation state for one world. All operations
// take a step-granularity lock so a render driver and network readers never
// observe a partially updated frame.
type Session struct {
	mu sync.Mutex

	log      *logging.Logger
	rng      *rand.Rand
	mode     universe.Mode
	tunables universe.Tunables
	topology universe.Topology
	world    *state.WorldState
	registry *teleport.Registry
	machine  *teleport.Machine

	held           map[Command]bool
	tick           uint64
	nextProjectile uint64
}

// Option customises session construction.
type Option func(*Session)

// WithLogger attaches a structured logger to the session.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithSeed fixes the random source so multi-portal routing is reproducible.
func WithSeed(seed int64) Option {
	return func(s *Session) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// New constructs a session initialised to the requested universe mode.
func New(mode universe.Mode, opts ...Option) (*Session, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown universe mode %q", mode)
	}
	session := &Session{
		log:      logging.NewTestLogger(),
		rng:      rand.New(rand.NewSource(1)),
		world:    state.NewWorldState(),
		registry: teleport.NewRegistry(),
		held:     make(map[Command]bool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(session)
		}
	}
	if err := session.switchModeLocked(mode); err != nil {
		return nil, err
	}
	return session, nil
}

// Mode returns the active universe mode.
func (s *Session) Mode() universe.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Tunables returns a copy of the live simulation parameters.
func (s *Session) Tunables() universe.Tunables {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tunables
}

// SetCommand toggles an abstract movement command. Repeating the current
// value is a no-op, so callers may forward raw key repeats unfiltered.
func (s *Session) SetCommand(command Command, active bool) error {
	if !command.Valid() {
		return fmt.Errorf("unknown command %q", command)
	}
	s.mu.Lock()
	if active {
		s.held[command] = true
	} else {
		delete(s.held, command)
	}
	s.mu.Unlock()
	return nil
}

// ThrowProjectile spawns a ball at the character's head along its facing
// direction and returns the new projectile's identifier.
func (s *Session) ThrowProjectile() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tunables.AllowThrow {
		return "", ErrThrowDisallowed
	}

	character := s.world.Character.Snapshot()
	heading := physics.Heading(character.YawDeg)
	head := physics.FromStateVec3(character.Position).Add(physics.Vec3{Y: s.tunables.HeadHeight})

	//1.- Spawn slightly ahead of the head so the ball clears the character.
	spawn := head.Add(heading.Scale(s.tunables.BallRadius + 0.5))
	s.nextProjectile++
	projectile := &state.ProjectileState{
		ID:             fmt.Sprintf("ball-%d", s.nextProjectile),
		Position:       physics.ToStateVec3(spawn),
		Velocity:       physics.ToStateVec3(heading.Scale(s.tunables.ThrowSpeedMps)),
		Radius:         s.tunables.BallRadius,
		CanTeleport:    true,
		RemainingTicks: s.tunables.ProjectileLifetimeTicks,
	}
	s.world.Projectiles.Upsert(projectile)
	return projectile.ID, nil
}

// PlaceEndpoint appends a teleport endpoint ahead of the character. The
// operation is rejected outside the multi-portal sandbox.
func (s *Session) PlaceEndpoint(role state.EndpointRole) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown endpoint role %q", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tunables.AllowPlacement {
		return "", ErrPlacementDisallowed
	}

	character := s.world.Character.Snapshot()
	heading := physics.Heading(character.YawDeg)
	//1.- Anchor the structure at head height so threshold checks share a baseline.
	position := physics.FromStateVec3(character.Position).
		Add(physics.Vec3{Y: s.tunables.HeadHeight}).
		Add(heading.Scale(s.tunables.TeleportThreshold + 1.0))
	//2.- Face the structure back toward the placer so arrivals step out clear.
	endpoint := s.registry.Add(role, "portals", position, heading.Scale(-1))
	if endpoint == nil {
		return "", fmt.Errorf("unknown endpoint role %q", role)
	}
	s.world.Endpoints.Append(endpoint.State())
	s.log.Debug("endpoint placed",
		logging.String("endpoint_id", endpoint.ID),
		logging.String("role", string(role)))
	return endpoint.ID, nil
}

// ConfigPatch carries the optional runtime overrides accepted by SetConfig.
type ConfigPatch struct {
	Speed      *float64 `json:"speed,omitempty"`
	Distance   *float64 `json:"distance,omitempty"`
	BallRadius *float64 `json:"ball_radius,omitempty"`
	WorldSize  *float64 `json:"world_size,omitempty"`
}

// SetConfig validates and applies a configuration patch atomically: if any
// field is invalid the whole patch is rejected and prior values remain.
func (s *Session) SetConfig(patch ConfigPatch) error {
	var problems []string
	if patch.Speed != nil && *patch.Speed <= 0 {
		problems = append(problems, fmt.Sprintf("speed must be positive, got %v", *patch.Speed))
	}
	if patch.Distance != nil && *patch.Distance <= 0 {
		problems = append(problems, fmt.Sprintf("camera distance must be positive, got %v", *patch.Distance))
	}
	if patch.BallRadius != nil && *patch.BallRadius <= 0 {
		problems = append(problems, fmt.Sprintf("ball radius must be positive, got %v", *patch.BallRadius))
	}
	if patch.WorldSize != nil && *patch.WorldSize <= 0 {
		problems = append(problems, fmt.Sprintf("world size must be positive, got %v", *patch.WorldSize))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	s.mu.Lock()
	//1.- Apply every field only after the whole patch validated.
	if patch.Speed != nil {
		s.tunables.SpeedMps = *patch.Speed
	}
	if patch.Distance != nil {
		s.tunables.CameraDistance = *patch.Distance
	}
	if patch.BallRadius != nil {
		//2.- New throws pick up the radius; live projectiles keep theirs.
		s.tunables.BallRadius = *patch.BallRadius
	}
	if patch.WorldSize != nil {
		s.tunables.WorldSize = *patch.WorldSize
		//3.- The toroidal policy embeds the world size, so rebuild it.
		s.topology = universe.TopologyFor(s.mode, s.tunables)
	}
	s.mu.Unlock()
	return nil
}

// SetUniverseMode resets all projectiles and endpoints, selects the topology
// policy, and reinitialises the character to the mode's default pose.
func (s *Session) SetUniverseMode(mode universe.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown universe mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.switchModeLocked(mode); err != nil {
		return err
	}
	s.world.Events.Add(&state.Event{
		Type:   state.EventModeChanged,
		Tick:   s.tick,
		Detail: mode.String(),
	})
	return nil
}

func (s *Session) switchModeLocked(mode universe.Mode) error {
	tunables, err := universe.Defaults(mode)
	if err != nil {
		return err
	}
	if err := tunables.Validate(); err != nil {
		return err
	}

	s.mode = mode
	s.tunables = tunables
	s.topology = universe.TopologyFor(mode, tunables)

	//1.- Drop every projectile and endpoint owned by the previous mode.
	s.world.Projectiles.Clear()
	s.world.Endpoints.Clear()
	s.registry.Clear()
	s.machine = teleport.NewMachine(s.registry, tunables.TeleportThreshold, tunables.ExitOffset, s.rng)

	//2.- Reinitialise the character to the mode's default pose.
	s.world.Character.Reset(state.CharacterState{
		Position:    tunables.CharacterStart,
		YawDeg:      tunables.CharacterYawDeg,
		CanTeleport: true,
	})

	//3.- The wormhole mode ships a fixed entrance/exit pair on the Z axis,
	// both anchored at head height so their vertical baselines agree.
	if mode == universe.ModeWormhole {
		baseline := tunables.CharacterStart.Y + tunables.HeadHeight
		half := tunables.WormholeSpan / 2.0
		entrance := s.registry.Add(state.RoleEntrance, "wormhole",
			physics.Vec3{Y: baseline, Z: -half}, physics.Vec3{Z: -1})
		exit := s.registry.Add(state.RoleExit, "wormhole",
			physics.Vec3{Y: baseline, Z: half}, physics.Vec3{Z: 1})
		s.world.Endpoints.Append(entrance.State())
		s.world.Endpoints.Append(exit.State())
	}

	s.log.Info("universe mode selected", logging.String("mode", mode.String()))
	return nil
}

// Step advances the simulation by one tick and returns the state diff.
// The pipeline order is fixed: integrate, apply the topology policy,
// resolve collisions and ground contact, then evaluate teleports.
func (s *Session) Step(deltaSeconds float64) state.TickDiff {
	if deltaSeconds <= 0 {
		return state.TickDiff{Mode: s.Mode().String()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	s.stepCharacterLocked(deltaSeconds)
	s.stepProjectilesLocked(deltaSeconds)

	diff := s.world.ConsumeDiff(s.tick)
	diff.Mode = s.mode.String()
	return diff
}

// Snapshot returns the full world state, e.g. for a newly joined viewer.
func (s *Session) Snapshot() state.TickDiff {
	s.mu.Lock()
	defer s.mu.Unlock()
	diff := s.world.Snapshot(s.tick)
	diff.Mode = s.mode.String()
	return diff
}

func (s *Session) stepCharacterLocked(deltaSeconds float64) {
	intent := intentFromCommands(s.held)
	tuning := physics.CharacterTuning{
		SpeedMps:         s.tunables.SpeedMps,
		YawRateDegPerSec: s.tunables.YawRateDegPerSec,
		AllowVertical:    s.tunables.AllowVertical,
	}
	headOffset := physics.Vec3{Y: s.tunables.HeadHeight}

	s.world.Character.Mutate(func(character *state.CharacterState) {
		physics.IntegrateCharacter(character, intent, tuning, deltaSeconds)
		s.topology.Apply(&character.Position)

		//1.- The character's teleport reference point is its head.
		head := physics.FromStateVec3(character.Position).Add(headOffset)
		if jump, ok := s.machine.Evaluate(CharacterEntityID, head); ok {
			character.Position = physics.ToStateVec3(jump.Position.Sub(headOffset))
			s.world.Events.Add(&state.Event{
				Type:         state.EventTeleport,
				Tick:         s.tick,
				EntityID:     CharacterEntityID,
				FromEndpoint: jump.From.ID,
				ToEndpoint:   jump.To.ID,
				Position:     character.Position,
			})
		}
		character.CanTeleport = s.machine.Armed(CharacterEntityID)
	})
}

func (s *Session) stepProjectilesLocked(deltaSeconds float64) {
	ballistic := physics.ProjectileTuning{
		GravityMps2: s.tunables.GravityMps2,
		GroundY:     s.tunables.MinHeight,
	}
	ground := physics.GroundTuning{
		GroundY:        s.tunables.MinHeight,
		RestSnapSpeed:  s.tunables.RestSnapSpeed,
		BounceDamping:  s.tunables.BounceDamping,
		GroundFriction: s.tunables.GroundFriction,
	}

	s.world.Projectiles.Mutate(func(ordered []*state.ProjectileState) []string {
		var expired []string
		live := ordered[:0]
		for _, projectile := range ordered {
			//1.- Expire tunnel-mode projectiles before spending work on them.
			if projectile.RemainingTicks > 0 {
				projectile.RemainingTicks--
				if projectile.RemainingTicks == 0 {
					expired = append(expired, projectile.ID)
					s.machine.Forget(projectile.ID)
					s.world.Events.Add(&state.Event{
						Type:     state.EventProjectileExpired,
						Tick:     s.tick,
						EntityID: projectile.ID,
						Position: projectile.Position,
					})
					continue
				}
			}
			physics.IntegrateProjectile(projectile, ballistic, deltaSeconds)
			s.topology.Apply(&projectile.Position)
			live = append(live, projectile)
		}

		//2.- Resolve pairwise overlaps in spawn order, then the ground plane.
		physics.ResolveProjectileCollisions(live, s.tunables.Restitution)
		for _, projectile := range live {
			physics.ResolveGroundContact(projectile, ground)
		}

		//3.- Run the teleport machine against each surviving projectile.
		for _, projectile := range live {
			center := physics.FromStateVec3(projectile.Position)
			if jump, ok := s.machine.Evaluate(projectile.ID, center); ok {
				projectile.Position = physics.ToStateVec3(jump.Position)
				s.world.Events.Add(&state.Event{
					Type:         state.EventTeleport,
					Tick:         s.tick,
					EntityID:     projectile.ID,
					FromEndpoint: jump.From.ID,
					ToEndpoint:   jump.To.ID,
					Position:     projectile.Position,
				})
			}
			projectile.CanTeleport = s.machine.Armed(projectile.ID)
		}
		return expired
	})
}
