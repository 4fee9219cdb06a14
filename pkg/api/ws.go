package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vpn-sentinel/pkg/model"
)

const writeWait = 5 * time.Second

// AlertHub fans alert records out to websocket subscribers, the networked
// counterpart of the console mirror.
type AlertHub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[*websocket.Conn]struct{}
}

func NewAlertHub() *AlertHub {
	return &AlertHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: map[*websocket.Conn]struct{}{},
	}
}

// Run forwards records from ch until ctx is done or ch closes.
func (h *AlertHub) Run(ctx context.Context, ch <-chan model.AlertRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(rec)
		}
	}
}

// Broadcast writes rec to every subscriber, dropping those that fail.
func (h *AlertHub) Broadcast(rec model.AlertRecord) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs))
	for c := range h.subs {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteJSON(rec); err != nil {
			h.closeSub(c)
		}
	}
}

// HandleStream upgrades the request and subscribes it to alert records.
func (h *AlertHub) HandleStream(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	h.mu.Lock()
	h.subs[c] = struct{}{}
	h.mu.Unlock()
	log.Printf("alert subscriber connected from %s", r.RemoteAddr)
	go h.readLoop(c)
}

// Subscribers returns the number of connected subscribers.
func (h *AlertHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// CloseAll disconnects every subscriber.
func (h *AlertHub) CloseAll() {
	h.mu.Lock()
	conns := h.subs
	h.subs = map[*websocket.Conn]struct{}{}
	h.mu.Unlock()
	for c := range conns {
		_ = c.Close()
	}
}

// readLoop discards client frames and notices disconnects.
func (h *AlertHub) readLoop(c *websocket.Conn) {
	defer h.closeSub(c)
	for {
		if _, _, err := c.NextReader(); err != nil {
			return
		}
	}
}

func (h *AlertHub) closeSub(c *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.subs[c]
	delete(h.subs, c)
	h.mu.Unlock()
	if ok {
		_ = c.Close()
		log.Printf("alert subscriber disconnected")
	}
}
