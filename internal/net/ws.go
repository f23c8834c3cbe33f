package net

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/raymoo/monoidal-effects/internal/hud"
	"github.com/raymoo/monoidal-effects/internal/runner"
)

type hudFrame struct {
	Type    string      `json:"type"`
	Tick    uint64      `json:"tick,omitempty"`
	ActorID string      `json:"actorId"`
	Entries []hud.Entry `json:"entries"`
}

type pongMessage struct {
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
}

type viewerMessage struct {
	Type   string `json:"type"`
	SentAt int64  `json:"sentAt"`
}

// wsSession serialises writes to one subscriber connection.
type wsSession struct {
	conn    *websocket.Conn
	session session
	mu      sync.Mutex
}

func (ws *wsSession) write(data []byte) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.conn.WriteMessage(websocket.TextMessage, data)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("session")
	if token == "" {
		http.Error(w, "missing session", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("upgrade failed: %v", err)
		return
	}

	sess, ok := s.sessions.resolve(token)
	if !ok {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown session")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}

	sub := &wsSession{conn: conn, session: sess}
	s.addSubscriber(sub)

	if !s.sendHUDFrame(sub, 0) {
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.dropSubscriber(sub)
			return
		}

		var msg viewerMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Printf("discarding malformed message from %s: %v", sess.ActorID, err)
			continue
		}

		switch msg.Type {
		case "ping":
			pong := pongMessage{
				Type:       "pong",
				ServerTime: s.clock.Now().UnixMilli(),
				ClientTime: msg.SentAt,
			}
			data, err := json.Marshal(pong)
			if err != nil {
				s.logger.Printf("failed to marshal pong for %s: %v", sess.ActorID, err)
				continue
			}
			if err := sub.write(data); err != nil {
				s.dropSubscriber(sub)
				return
			}
		case "hud":
			if !s.sendHUDFrame(sub, 0) {
				return
			}
		default:
			s.logger.Printf("unknown message type %q from %s", msg.Type, sess.ActorID)
		}
	}
}

func (s *Server) sendHUDFrame(sub *wsSession, tick uint64) bool {
	frame := hudFrame{
		Type:    "hud",
		Tick:    tick,
		ActorID: sub.session.ActorID,
		Entries: s.hudEntries(sub.session.ActorID),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Printf("failed to marshal hud frame for %s: %v", sub.session.ActorID, err)
		return true
	}
	if err := sub.write(data); err != nil {
		s.dropSubscriber(sub)
		return false
	}
	return true
}

func (s *Server) hudEntries(actorID string) []hud.Entry {
	if s.deps.Overlay == nil {
		return []hud.Entry{}
	}
	entries := s.deps.Overlay.Snapshot(actorID)
	if entries == nil {
		entries = []hud.Entry{}
	}
	return entries
}

func (s *Server) addSubscriber(sub *wsSession) {
	s.subMu.Lock()
	s.subscribers[sub.session.ID] = sub
	s.subMu.Unlock()
}

func (s *Server) dropSubscriber(sub *wsSession) {
	s.subMu.Lock()
	delete(s.subscribers, sub.session.ID)
	s.subMu.Unlock()
	sub.conn.Close()
}

// closeSubscriber ends the stream for a session that has left.
func (s *Server) closeSubscriber(sessionID string) {
	s.subMu.Lock()
	sub, ok := s.subscribers[sessionID]
	if ok {
		delete(s.subscribers, sessionID)
	}
	s.subMu.Unlock()
	if !ok {
		return
	}
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
	sub.conn.WriteMessage(websocket.CloseMessage, message)
	sub.conn.Close()
}

// AfterTick streams overlay frames on the loop's cadence; wire it into the
// runner's hooks.
func (s *Server) AfterTick(result runner.TickResult) {
	if s.pushEvery <= 0 || result.Tick == 0 || result.Tick%uint64(s.pushEvery) != 0 {
		return
	}
	s.BroadcastHUD(result.Tick)
}

// BroadcastHUD pushes the current overlay to every subscriber.
func (s *Server) BroadcastHUD(tick uint64) {
	s.subMu.Lock()
	subs := make([]*wsSession, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()

	for _, sub := range subs {
		s.sendHUDFrame(sub, tick)
	}
}
