package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"multiverse/sim/internal/config"
	"multiverse/sim/internal/input"
	"multiverse/sim/internal/logging"
	"multiverse/sim/internal/state"
	"multiverse/sim/internal/universe"
	"multiverse/sim/internal/websockettest"
)

func newBridgeTestGate() *input.Gate {
	return input.NewGate(input.Config{}, logging.NewTestLogger())
}

func newTestBridge(t *testing.T, opts ...BridgeOption) (*Bridge, *httptest.Server) {
	t.Helper()
	sim := newTestSession(t, universe.ModeWormhole)
	cfg := &config.Config{
		PingInterval:    time.Second,
		MaxPayloadBytes: config.DefaultMaxPayloadBytes,
		MaxClients:      2,
	}
	bridge := NewBridge(cfg, sim, newBridgeTestGate(), logging.NewTestLogger(), opts...)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bridge.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return bridge, server
}

func readTick(t *testing.T, conn *websocket.Conn) tickMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		var msg tickMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if msg.Type == "tick" {
			return msg
		}
	}
}

func TestBridgeGreetsWithSnapshot(t *testing.T) {
	_, server := newTestBridge(t)

	conn, _, err := websockettest.Dial(server, "/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	//1.- The first message is a full snapshot so the viewer can render immediately.
	msg := readTick(t, conn)
	if msg.Mode != "wormhole" || msg.Character == nil {
		t.Fatalf("unexpected greeting: %+v", msg)
	}
	if len(msg.Endpoints.Added) != 2 || !msg.Endpoints.Reset {
		t.Fatalf("expected the wormhole pair in the greeting: %+v", msg.Endpoints)
	}
}

func TestBridgeRejectsInvalidCommand(t *testing.T) {
	_, server := newTestBridge(t)

	conn, _, err := websockettest.Dial(server, "/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	readTick(t, conn)

	//1.- Send a frame the session will refuse and expect a targeted error reply.
	frame := `{"schema_version":"1","sequence_id":3,"type":"place","role":"entrance"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var reply struct {
		Type       string `json:"type"`
		SequenceID uint64 `json:"sequence_id"`
		Error      string `json:"error"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if reply.Type != "error" || reply.SequenceID != 3 || !strings.Contains(reply.Error, "placement") {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestBridgeBroadcastDeliversToAllViewers(t *testing.T) {
	bridge, server := newTestBridge(t)

	first, _, err := websockettest.Dial(server, "/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer first.Close()
	second, _, err := websockettest.Dial(server, "/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer second.Close()
	readTick(t, first)
	readTick(t, second)

	payload, err := encodeTickDiff(state.TickDiff{Tick: 42, Mode: "wormhole"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	bridge.Broadcast(payload)

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readTick(t, conn)
		if msg.Tick != 42 {
			t.Fatalf("unexpected tick: %d", msg.Tick)
		}
	}

	broadcasts, clients := bridge.Stats()
	if broadcasts != 1 || clients != 2 {
		t.Fatalf("unexpected stats: %d broadcasts, %d clients", broadcasts, clients)
	}
}

func TestBridgeEnforcesViewerLimit(t *testing.T) {
	_, server := newTestBridge(t)

	first, _, err := websockettest.Dial(server, "/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer first.Close()
	second, _, err := websockettest.Dial(server, "/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer second.Close()
	//1.- Receiving the greetings guarantees both viewers are registered.
	readTick(t, first)
	readTick(t, second)

	//2.- The third viewer is turned away with a service unavailable status.
	_, resp, err := websockettest.Dial(server, "/ws", nil)
	if err == nil {
		t.Fatal("expected dial to fail at the viewer limit")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func signTestToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	encode := func(data []byte) string { return base64.RawURLEncoding.EncodeToString(data) }
	header := encode([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := encode([]byte(fmt.Sprintf(`{"sub":%q,"exp":%d,"iat":%d}`, subject, expires.Unix(), time.Now().Unix())))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(header + "." + payload))
	return header + "." + payload + "." + encode(mac.Sum(nil))
}

func TestBridgeHMACViewerAuth(t *testing.T) {
	authenticator, err := newHMACViewerAuthenticator("stream-secret")
	if err != nil {
		t.Fatalf("authenticator construction failed: %v", err)
	}
	_, server := newTestBridge(t, WithViewerAuthenticator(authenticator))

	//1.- Missing credentials are rejected before the upgrade.
	_, resp, err := websockettest.Dial(server, "/ws", nil)
	if err == nil {
		t.Fatal("expected dial without token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected response: %+v", resp)
	}

	//2.- A signed token admits the viewer.
	token := signTestToken(t, "stream-secret", "viewer-9", time.Now().Add(time.Minute))
	conn, _, err := websockettest.Dial(server, "/ws?auth_token="+token, nil)
	if err != nil {
		t.Fatalf("dial with token failed: %v", err)
	}
	defer conn.Close()
	readTick(t, conn)

	//3.- An expired token is refused even with a valid signature.
	expired := signTestToken(t, "stream-secret", "viewer-9", time.Now().Add(-time.Minute))
	_, resp, err = websockettest.Dial(server, "/ws?auth_token="+expired, nil)
	if err == nil {
		t.Fatal("expected dial with expired token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestOriginChecker(t *testing.T) {
	open := originChecker(nil)
	request := httptest.NewRequest(http.MethodGet, "/ws", nil)
	request.Header.Set("Origin", "https://anywhere.example")
	if !open(request) {
		t.Fatal("empty allowlist must admit every origin")
	}

	restricted := originChecker([]string{"https://viewer.example"})
	if restricted(request) {
		t.Fatal("unlisted origin must be rejected")
	}
	request.Header.Set("Origin", "https://viewer.example")
	if !restricted(request) {
		t.Fatal("listed origin must be admitted")
	}
	request.Header.Del("Origin")
	if !restricted(request) {
		t.Fatal("non-browser clients without an origin header are admitted")
	}
}
