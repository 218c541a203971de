package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"multiverse/sim/internal/logging"
	"multiverse/sim/internal/session"
	"multiverse/sim/internal/universe"
)

func newTestSession(t *testing.T, mode universe.Mode) *session.Session {
	t.Helper()
	sim, err := session.New(mode, session.WithLogger(logging.NewTestLogger()), session.WithSeed(7))
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return sim
}

func TestDecodeCommandPayload(t *testing.T) {
	payload, err := decodeCommandPayload([]byte(`{"schema_version":"1","client_id":"viewer-1","sequence_id":4,"type":"command","direction":"forward","sent_at_ms":1700000000000}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.ClientID != "viewer-1" || payload.SequenceID != 4 || payload.Direction != "forward" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.SentAt() != time.UnixMilli(1700000000000) {
		t.Fatalf("unexpected sent-at: %v", payload.SentAt())
	}

	//1.- Empty frames and malformed JSON are rejected before validation.
	if _, err := decodeCommandPayload(nil); !errors.Is(err, errCommandEmptyPayload) {
		t.Fatalf("expected empty payload error, got %v", err)
	}
	if _, err := decodeCommandPayload([]byte("{not json")); err == nil {
		t.Fatal("expected JSON error")
	}
}

func TestValidateCommandPayload(t *testing.T) {
	valid := &commandPayload{SchemaVersion: "1", SequenceID: 1}
	if err := validateCommandPayload(valid); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	if err := validateCommandPayload(&commandPayload{SequenceID: 1}); !errors.Is(err, errCommandMissingVersion) {
		t.Fatalf("expected missing version error, got %v", err)
	}
	if err := validateCommandPayload(&commandPayload{SchemaVersion: "1"}); err == nil {
		t.Fatal("expected sequence error")
	}
	if err := validateCommandPayload(nil); err == nil {
		t.Fatal("expected nil payload error")
	}
}

func TestApplyCommandPayloadDispatch(t *testing.T) {
	sim := newTestSession(t, universe.ModePortals)

	//1.- Movement commands toggle held state; a bare press defaults to active.
	if err := applyCommandPayload(sim, &commandPayload{Type: "command", Direction: "forward"}); err != nil {
		t.Fatalf("movement dispatch failed: %v", err)
	}
	before := sim.Snapshot().Character.Position
	sim.Step(0.1)
	after := sim.Snapshot().Character.Position
	if before == after {
		t.Fatal("expected held command to move the character")
	}

	//2.- Throws spawn projectiles through the same dispatch path.
	if err := applyCommandPayload(sim, &commandPayload{Type: "throw"}); err != nil {
		t.Fatalf("throw dispatch failed: %v", err)
	}
	if len(sim.Snapshot().Projectiles.Updated) != 1 {
		t.Fatal("expected one projectile after throw")
	}

	//3.- Placement honours role validation before touching the session.
	if err := applyCommandPayload(sim, &commandPayload{Type: "place", Role: "launchpad"}); err == nil {
		t.Fatal("expected invalid role error")
	}
	if err := applyCommandPayload(sim, &commandPayload{Type: "place", Role: "entrance"}); err != nil {
		t.Fatalf("place dispatch failed: %v", err)
	}

	//4.- Mode switches route through ParseMode so casing is forgiving.
	if err := applyCommandPayload(sim, &commandPayload{Type: "mode", Mode: " Infinity "}); err != nil {
		t.Fatalf("mode dispatch failed: %v", err)
	}
	if sim.Mode() != universe.ModeInfinity {
		t.Fatalf("unexpected mode: %v", sim.Mode())
	}

	//5.- Config patches reuse the session's atomic validation.
	speed := 9.0
	if err := applyCommandPayload(sim, &commandPayload{Type: "config", Config: &session.ConfigPatch{Speed: &speed}}); err != nil {
		t.Fatalf("config dispatch failed: %v", err)
	}
	if sim.Tunables().SpeedMps != 9 {
		t.Fatalf("unexpected speed: %v", sim.Tunables().SpeedMps)
	}
	if err := applyCommandPayload(sim, &commandPayload{Type: "config"}); err == nil {
		t.Fatal("expected error for missing config patch")
	}

	if err := applyCommandPayload(sim, &commandPayload{Type: "mystery"}); !errors.Is(err, errCommandUnknownType) {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestApplyCommandPayloadReleasesKeys(t *testing.T) {
	sim := newTestSession(t, universe.ModeWormhole)
	inactive := false

	if err := applyCommandPayload(sim, &commandPayload{Type: "command", Direction: "forward"}); err != nil {
		t.Fatalf("press failed: %v", err)
	}
	if err := applyCommandPayload(sim, &commandPayload{Type: "command", Direction: "forward", Active: &inactive}); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	before := sim.Snapshot().Character.Position
	sim.Step(0.1)
	if sim.Snapshot().Character.Position != before {
		t.Fatal("released command must not move the character")
	}
}

func TestApplyCommandPayloadRejectsBadInput(t *testing.T) {
	sim := newTestSession(t, universe.ModeWormhole)

	if err := applyCommandPayload(nil, &commandPayload{Type: "throw"}); err == nil {
		t.Fatal("expected error for nil session")
	}
	if err := applyCommandPayload(sim, nil); err == nil {
		t.Fatal("expected error for nil payload")
	}
	if err := applyCommandPayload(sim, &commandPayload{Type: "command", Direction: "sideways"}); err == nil {
		t.Fatal("expected error for unknown direction")
	}
	if err := applyCommandPayload(sim, &commandPayload{Type: "mode", Mode: "hyperspace"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if err := applyCommandPayload(sim, &commandPayload{Type: "place", Role: "entrance"}); !errors.Is(err, session.ErrPlacementDisallowed) {
		t.Fatalf("expected placement rejection, got %v", err)
	}
}

func TestProcessCommandGatesFrames(t *testing.T) {
	sim := newTestSession(t, universe.ModeWormhole)
	gate := newBridgeTestGate()
	bridge := NewBridge(nil, sim, gate, logging.NewTestLogger())
	logger := logging.NewTestLogger()

	first := &commandPayload{SchemaVersion: "1", SequenceID: 5, Type: "throw"}
	if err := bridge.processCommand("viewer-1", first, logger); err != nil {
		t.Fatalf("first frame rejected: %v", err)
	}

	//1.- Replayed sequence numbers are dropped before reaching the session.
	replay := &commandPayload{SchemaVersion: "1", SequenceID: 5, Type: "throw"}
	err := bridge.processCommand("viewer-1", replay, logger)
	if err == nil || !strings.Contains(err.Error(), "sequence") {
		t.Fatalf("expected sequence rejection, got %v", err)
	}
	if len(sim.Snapshot().Projectiles.Updated) != 1 {
		t.Fatal("replayed frame must not spawn a second projectile")
	}
}
