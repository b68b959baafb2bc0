// Package notify pushes turn and draft events to live WebSocket
// listeners subscribed per session.
package notify

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowkan/process-ai/internal/process"
)

const writeTimeout = 10 * time.Second

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*websocket.Conn]struct{})}
}

func (h *Hub) Subscribe(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*websocket.Conn]struct{})
	}
	h.subs[sessionID][conn] = struct{}{}
	log.Printf("ws subscribed session=%s total=%d", sessionID, len(h.subs[sessionID]))
}

func (h *Hub) Unsubscribe(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subs[sessionID]; ok {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.subs, sessionID)
		}
	}
}

func (h *Hub) BroadcastTurn(sessionID string, ev process.TurnEvent) {
	h.broadcast(sessionID, ev)
}

func (h *Hub) NotifyDraftGenerated(sessionID string, tpl *process.GeneratedTemplate) {
	h.broadcast(sessionID, map[string]any{
		"type":       "template_generated",
		"session_id": sessionID,
		"template":   tpl,
	})
}

func (h *Hub) broadcast(sessionID string, payload any) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs[sessionID]))
	for conn := range h.subs[sessionID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(payload); err != nil {
			log.Printf("ws write failed session=%s err=%v", sessionID, err)
			h.Unsubscribe(sessionID, conn)
			_ = conn.Close()
		}
	}
}
