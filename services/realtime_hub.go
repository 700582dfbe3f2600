package services

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// Realtime event kinds pushed to a connected owner. All of these are
// advisory: the recipient emails and the Record row are the source of truth,
// a dropped websocket write is never an error.
const (
	EventTimerComplete  = "timerComplete"
	EventTimerCancelled = "timerCancelled"
	EventTimerExtended  = "timerExtended"
)

type WSClient struct {
	UserID string
	Conn   *websocket.Conn
}

// RealtimeHub maps connected users to their live websocket sessions. Entries
// live only as long as the connection; the read loop unregisters on error.
type RealtimeHub struct {
	mu      sync.RWMutex
	clients map[string]map[*WSClient]struct{}
}

func NewRealtimeHub() *RealtimeHub {
	return &RealtimeHub{clients: make(map[string]map[*WSClient]struct{})}
}

func (h *RealtimeHub) Register(c *WSClient) {
	h.mu.Lock()
	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = make(map[*WSClient]struct{})
	}
	h.clients[c.UserID][c] = struct{}{}
	h.mu.Unlock()
}

func (h *RealtimeHub) Unregister(c *WSClient) {
	h.mu.Lock()
	if set := h.clients[c.UserID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()
	_ = c.Conn.Close()
}

// Push sends an event to every live session of userID. Best effort: write
// errors are ignored and a user with no sessions is a silent no-op.
func (h *RealtimeHub) Push(userID, kind string, payload map[string]any) {
	msg := map[string]any{"kind": kind}
	for k, v := range payload {
		msg[k] = v
	}
	raw, _ := json.Marshal(msg)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		_ = c.Conn.WriteMessage(websocket.TextMessage, raw)
	}
}
