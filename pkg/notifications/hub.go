package notifications

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ledgerquest/ledgerquest/pkg/log"
	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Hub streams domain events to connected clients over WebSocket. Each
// user may hold multiple connections (for example two browser tabs);
// events are fanned out to all of them.
type Hub struct {
	lock  sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Handle upgrades the request to a WebSocket connection, registers it
// for the user, and blocks until the client disconnects.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Error("Failed to accept WebSocket connection: %v", err)
		return
	}
	defer conn.CloseNow()

	h.register(userID, conn)
	defer h.unregister(userID, conn)

	log.Debug("WebSocket connection opened for user %s", userID)

	// clients never send application messages; reading just detects
	// the close
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			log.Debug("WebSocket connection closed for user %s", userID)
			return
		}
	}
}

func (h *Hub) register(userID string, conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[userID][conn] = struct{}{}
}

func (h *Hub) unregister(userID string, conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.conns[userID], conn)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

// Notify sends the event to every connection of the owning user.
// Write failures close the offending connection and are not surfaced.
func (h *Hub) Notify(ctx context.Context, event rpgtypes.Event) error {
	h.lock.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns[event.UserID]))
	for conn := range h.conns[event.UserID] {
		conns = append(conns, conn)
	}
	h.lock.Unlock()

	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(writeCtx, conn, event)
		cancel()
		if err != nil {
			log.Debug("Failed to write event to WebSocket: %v", err)
			conn.Close(websocket.StatusInternalError, "write failed")
		}
	}
	return nil
}
