package notify

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

var subscriberGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "match_engine_change_subscribers",
	Help: "Current number of change-stream websocket subscribers",
})

func init() {
	prometheus.MustRegister(subscriberGauge)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Handler upgrades GET /v1/changes to a websocket and streams change
// envelopes until the peer goes away.
func (h *Hub) Handler() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// same-host operator tooling only; the UI tier fronts this
		CheckOrigin: func(*http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("Websocket upgrade failed", "error", err)
			return
		}

		c := newClient(uuid.New().String())
		h.register <- c

		go h.readPump(conn, c)
		h.writePump(conn, c)

		select {
		case h.unregister <- c:
		default:
		}
		conn.Close()
	}
}

// writePump drains the client's send channel onto the wire, pinging on an
// interval to keep intermediaries from dropping the connection.
func (h *Hub) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				h.logger.Warn("Subscriber write failed", "client_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound frames for pong handling only; subscribers
// never send data.
func (h *Hub) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		default:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Subscriber read failed", "client_id", c.id, "error", err)
			}
			return
		}
	}
}
