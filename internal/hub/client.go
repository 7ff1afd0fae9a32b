package hub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fleetwatch/internal/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard may be served from a different origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientRequest is the inbound control message from a subscriber
type clientRequest struct {
	Type     string   `json:"type"` // subscribe, unsubscribe
	Channels []string `json:"channels"`
}

// ServeWS upgrades an HTTP request to a WebSocket connection and wires
// it into the hub
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log := logger.WithComponent("hub")
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := h.Connect()
	go writePump(h, conn, ws)
	go readPump(h, conn, ws)
}

// readPump handles subscribe/unsubscribe messages until the peer goes
// away, then releases the connection's subscriptions
func readPump(h *Hub, conn *Conn, ws *websocket.Conn) {
	log := logger.WithComponent("hub").With().Str("conn_id", conn.ID).Logger()
	defer func() {
		h.Disconnect(conn)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var req clientRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Warn().Err(err).Msg("ignoring malformed client message")
			continue
		}

		switch req.Type {
		case "subscribe":
			h.Subscribe(conn, req.Channels)
			log.Debug().Strs("channels", req.Channels).Msg("subscribed")
		case "unsubscribe":
			h.Unsubscribe(conn, req.Channels)
			log.Debug().Strs("channels", req.Channels).Msg("unsubscribed")
		default:
			log.Warn().Str("type", req.Type).Msg("unknown client message type")
		}
	}
}

// writePump forwards hub messages to the peer and pings it on a fixed
// interval; a missed pong fails the next read deadline in readPump
func writePump(h *Hub, conn *Conn, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case payload, ok := <-conn.Receive():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub disconnected us
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
