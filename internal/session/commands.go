package session

import (
	"fmt"
	"strings"

	"multiverse/sim/internal/physics"
)

// Command is one abstract movement toggle the host feeds into the session.
// Raw key or mouse wiring is the host's concern; the session only sees these.
type Command string

const (
	CommandForward     Command = "forward"
	CommandBackward    Command = "backward"
	CommandStrafeLeft  Command = "strafe_left"
	CommandStrafeRight Command = "strafe_right"
	CommandYawLeft     Command = "yaw_left"
	CommandYawRight    Command = "yaw_right"
	CommandUp          Command = "up"
	CommandDown        Command = "down"
)

// Commands lists every supported movement toggle.
func Commands() []Command {
	return []Command{
		CommandForward, CommandBackward,
		CommandStrafeLeft, CommandStrafeRight,
		CommandYawLeft, CommandYawRight,
		CommandUp, CommandDown,
	}
}

// Valid reports whether the command is one of the supported toggles.
func (c Command) Valid() bool {
	switch c {
	case CommandForward, CommandBackward, CommandStrafeLeft, CommandStrafeRight,
		CommandYawLeft, CommandYawRight, CommandUp, CommandDown:
		return true
	default:
		return false
	}
}

// String returns the wire representation of the command.
func (c Command) String() string { return string(c) }

// ParseCommand normalizes and validates a textual command identifier.
func ParseCommand(raw string) (Command, error) {
	command := Command(strings.ToLower(strings.TrimSpace(raw)))
	if !command.Valid() {
		return "", fmt.Errorf("unknown command %q", raw)
	}
	return command, nil
}

// intentFromCommands projects the held toggles into the integrator's shape.
func intentFromCommands(held map[Command]bool) physics.MoveIntent {
	return physics.MoveIntent{
		Forward:     held[CommandForward],
		Backward:    held[CommandBackward],
		StrafeLeft:  held[CommandStrafeLeft],
		StrafeRight: held[CommandStrafeRight],
		YawLeft:     held[CommandYawLeft],
		YawRight:    held[CommandYawRight],
		Up:          held[CommandUp],
		Down:        held[CommandDown],
	}
}
