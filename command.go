package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"multiverse/sim/internal/input"
	"multiverse/sim/internal/logging"
	"multiverse/sim/internal/session"
	"multiverse/sim/internal/state"
	"multiverse/sim/internal/universe"
)

var (
	errCommandEmptyPayload   = errors.New("empty command payload")
	errCommandMissingID      = errors.New("command missing client id")
	errCommandMissingVersion = errors.New("command missing schema version")
	errCommandUnknownType    = errors.New("unknown command type")
)

// commandPayload mirrors the JSON layout of viewer command frames.
type commandPayload struct {
	SchemaVersion string               `json:"schema_version"`
	ClientID      string               `json:"client_id"`
	SequenceID    uint64               `json:"sequence_id"`
	Type          string               `json:"type"`
	Direction     string               `json:"direction,omitempty"`
	Active        *bool                `json:"active,omitempty"`
	Role          string               `json:"role,omitempty"`
	Mode          string               `json:"mode,omitempty"`
	Config        *session.ConfigPatch `json:"config,omitempty"`
	SentAtMs      int64                `json:"sent_at_ms,omitempty"`
}

// decodeCommandPayload parses a websocket frame into a structured payload.
func decodeCommandPayload(raw []byte) (*commandPayload, error) {
	//1.- Ensure we have data to decode before hitting JSON parsing.
	if len(raw) == 0 {
		return nil, errCommandEmptyPayload
	}
	var payload commandPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// validateCommandPayload enforces required metadata on the payload.
func validateCommandPayload(payload *commandPayload) error {
	//2.- Guard against nil pointers coming from earlier processing steps.
	if payload == nil {
		return errors.New("command payload is nil")
	}
	if payload.SchemaVersion == "" {
		return errCommandMissingVersion
	}
	if payload.SequenceID == 0 {
		return fmt.Errorf("command sequence id must be positive: %d", payload.SequenceID)
	}
	return nil
}

// SentAt converts the optional capture timestamp into a time.Time instance.
func (payload *commandPayload) SentAt() time.Time {
	//1.- Treat missing or zero timestamps as unset so freshness derives from arrival time.
	if payload == nil || payload.SentAtMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(payload.SentAtMs)
}

// applyCommandPayload dispatches a validated payload to the simulation session.
func applyCommandPayload(sim *session.Session, payload *commandPayload) error {
	if sim == nil {
		return errors.New("session is nil")
	}
	if payload == nil {
		return errors.New("command payload is nil")
	}
	switch payload.Type {
	case "command":
		command, err := session.ParseCommand(payload.Direction)
		if err != nil {
			return err
		}
		//1.- Absent "active" means press so momentary clients stay simple.
		active := true
		if payload.Active != nil {
			active = *payload.Active
		}
		return sim.SetCommand(command, active)
	case "throw":
		_, err := sim.ThrowProjectile()
		return err
	case "place":
		role := state.EndpointRole(payload.Role)
		if !role.Valid() {
			return fmt.Errorf("invalid endpoint role %q", payload.Role)
		}
		_, err := sim.PlaceEndpoint(role)
		return err
	case "mode":
		mode, err := universe.ParseMode(payload.Mode)
		if err != nil {
			return err
		}
		return sim.SetUniverseMode(mode)
	case "config":
		if payload.Config == nil {
			return errors.New("config payload missing patch")
		}
		return sim.SetConfig(*payload.Config)
	default:
		return fmt.Errorf("%w: %q", errCommandUnknownType, payload.Type)
	}
}

// processCommand enforces gating, validation, and dispatch for inbound frames.
func (b *Bridge) processCommand(clientID string, payload *commandPayload, logger *logging.Logger) error {
	if b == nil {
		return errors.New("bridge is nil")
	}
	if payload == nil {
		return errors.New("command payload is nil")
	}

	if gate := b.gate; gate != nil {
		//1.- Evaluate sequencing and freshness guards before touching the session.
		frame := input.Frame{ClientID: clientID, SequenceID: payload.SequenceID}
		if ts := payload.SentAt(); !ts.IsZero() {
			frame.SentAt = ts
		}
		decision := gate.Evaluate(frame)
		if !decision.Accepted {
			if logger != nil {
				fields := []logging.Field{
					logging.String("reason", decision.Reason.String()),
					logging.String("client_id", clientID),
					logging.Field{Key: "sequence_id", Value: payload.SequenceID},
				}
				if decision.Delay > 0 {
					fields = append(fields, logging.Field{Key: "delay_ms", Value: decision.Delay.Milliseconds()})
				}
				logger.Debug("dropping command frame", fields...)
			}
			return fmt.Errorf("command gate rejected: %s", decision.Reason)
		}
	}

	//2.- Route the accepted frame into the session under its own locking.
	if err := applyCommandPayload(b.sim, payload); err != nil {
		if logger != nil {
			logger.Debug("dropping command", logging.Error(err))
		}
		return err
	}
	return nil
}
