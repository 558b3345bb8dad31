package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/facegate/internal/app"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 5 * time.Second
	eventsBuffer = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // kiosk UI is served locally
	},
}

// EventsHandler pushes kiosk events to WebSocket clients. The first
// message on every connection is a status snapshot.
type EventsHandler struct {
	kiosk  Kiosk
	logger *slog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(k Kiosk, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{kiosk: k, logger: logger}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.kiosk.Events(eventsBuffer)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if !h.send(conn, app.Event{Type: "status", Data: h.kiosk.Status()}) {
		return
	}

	for {
		select {
		case <-closed:
			return
		case e, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if !h.send(conn, e) {
				return
			}
		}
	}
}

func (h *EventsHandler) send(conn *websocket.Conn, e app.Event) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(e); err != nil {
		h.logger.Debug("websocket write", "error", err)
		return false
	}
	return true
}
