package net

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func websocketURL(t *testing.T, baseURL, sessionID string) string {
	t.Helper()
	parsed, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	parsed.Scheme = "ws"
	parsed.Path = "/ws"
	query := parsed.Query()
	query.Set("session", sessionID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func dialWS(t *testing.T, baseURL, sessionID string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(websocketURL(t, baseURL, sessionID), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("open websocket: %v", err)
	}
	t.Cleanup(func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func TestWSRejectsUnknownSession(t *testing.T) {
	env := newTestServer(t, nil, 0)
	ts := httptest.NewServer(env.srv)
	t.Cleanup(ts.Close)

	conn, resp, err := websocket.DefaultDialer.Dial(websocketURL(t, ts.URL, "bogus"), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("open websocket: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("read = %v, want a policy violation close", err)
	}
}

func TestWSSendsInitialFrame(t *testing.T) {
	env := newTestServer(t, nil, 0)
	ts := httptest.NewServer(env.srv)
	t.Cleanup(ts.Close)

	sessionID := joinActor(t, env.srv, "alice")
	conn := dialWS(t, ts.URL, sessionID)

	frame := readFrame(t, conn)
	if frame["type"] != "hud" {
		t.Fatalf("type = %v, want hud", frame["type"])
	}
	if frame["actorId"] != "alice" {
		t.Errorf("actorId = %v, want alice", frame["actorId"])
	}
	entries, ok := frame["entries"].([]any)
	if !ok {
		t.Fatalf("entries = %T, want an array", frame["entries"])
	}
	if len(entries) != 0 {
		t.Errorf("entries = %v, want empty before any effects", entries)
	}
}

func TestWSStreamsOverlayFrames(t *testing.T) {
	env := newTestServer(t, nil, 1)
	ts := httptest.NewServer(env.srv)
	t.Cleanup(ts.Close)

	sessionID := joinActor(t, env.srv, "alice")
	conn := dialWS(t, ts.URL, sessionID)
	readFrame(t, conn)

	doJSON(t, env.srv, "POST", "/api/effects", `{"type":"haste","actors":["alice"],"durationMs":60000}`)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("no frame carried the applied effect")
		}
		frame := readFrame(t, conn)
		entries, _ := frame["entries"].([]any)
		if len(entries) == 0 {
			continue
		}
		entry, _ := entries[0].(map[string]any)
		if entry["name"] != "Haste" {
			t.Fatalf("name = %v, want Haste", entry["name"])
		}
		if remaining, _ := entry["remaining"].(string); remaining == "" {
			t.Fatalf("remaining = %q, want formatted text", remaining)
		}
		return
	}
}

func TestWSPingPong(t *testing.T) {
	env := newTestServer(t, nil, 0)
	ts := httptest.NewServer(env.srv)
	t.Cleanup(ts.Close)

	sessionID := joinActor(t, env.srv, "alice")
	conn := dialWS(t, ts.URL, sessionID)
	readFrame(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","sentAt":123}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "pong" {
		t.Fatalf("type = %v, want pong", frame["type"])
	}
	if frame["clientTime"] != 123.0 {
		t.Errorf("clientTime = %v, want 123", frame["clientTime"])
	}
}

func TestWSLeaveClosesStream(t *testing.T) {
	env := newTestServer(t, nil, 0)
	ts := httptest.NewServer(env.srv)
	t.Cleanup(ts.Close)

	sessionID := joinActor(t, env.srv, "alice")
	conn := dialWS(t, ts.URL, sessionID)
	readFrame(t, conn)

	doJSON(t, env.srv, "POST", "/api/leave", `{"sessionId":"`+sessionID+`"}`)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("read = %v, want a normal close after leave", err)
	}
}
