//
//
package telemetry

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeWS streams events as JSON websocket text messages. The same ready,
// replay and live sequence as ServeSSE is used.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	resume := lastEventID(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, err := h.Subscribe(resume)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(wsWriteTimeout))
		return
	}
	defer sub.Close()

	// Inbound messages are ignored; reading detects the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(e Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(e); err != nil {
			h.logger.Debug("websocket write failed", "subscriber", sub.ID, "error", err)
			return false
		}
		return true
	}

	if !send(h.readyEvent()) {
		return
	}
	for _, e := range sub.Replay {
		if !send(e) {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case e, ok := <-sub.Events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub stopped"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if !send(e) {
				return
			}
		}
	}
}
