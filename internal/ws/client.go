package ws

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kopi-pos/api/internal/auth"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout * 9 / 10

	// Subscribers only send control frames.
	readLimit = 512

	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 2048,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Client is one subscriber to a table room or to the floor.
type Client struct {
	id      uuid.UUID
	hub     *Hub
	conn    *websocket.Conn
	tableID int64
	send    chan []byte
}

func (c *Client) logger() zerolog.Logger {
	return c.hub.log.With().Str("client_id", c.id.String()).Int64("table_id", c.tableID).Logger()
}

// readLoop discards inbound data and keeps the idle deadline fresh on pongs.
// It returns when the peer goes away.
func (c *Client) readLoop() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	}
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			log := c.logger()
			log.Warn().Err(err).Msg("websocket closed unexpectedly")
		}
		return
	}
}

// writeLoop sends one event per text frame and pings on a timer. A closed
// send channel means the hub dropped the client.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			kind, data = websocket.TextMessage, msg
		case <-ping.C:
			kind = websocket.PingMessage
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(kind, data); err != nil {
			log := c.logger()
			log.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}

// ServeWS upgrades an authenticated request to a websocket subscription.
// Endpoints: WS /ws/floor?token=JWT and WS /ws/tables/{tid}?token=JWT
func ServeWS(hub *Hub, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := auth.ValidateToken(jwtSecret, token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	tableID := FloorRoom
	if tid := chi.URLParam(r, "tid"); tid != "" {
		tableID, err = strconv.ParseInt(tid, 10, 64)
		if err != nil || tableID <= 0 {
			http.Error(w, "invalid table id", http.StatusBadRequest)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		hub.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &Client{
		id:      uuid.New(),
		hub:     hub,
		conn:    conn,
		tableID: tableID,
		send:    make(chan []byte, sendBuffer),
	}
	if !hub.join(c) {
		conn.Close()
		return
	}
	log := c.logger()
	log.Info().Int64("user_id", claims.UserID).Str("role", claims.Role).Msg("websocket connected")

	go c.writeLoop()
	go c.readLoop()
}
