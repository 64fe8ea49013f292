// Package ws pushes match notifications to browsers. The matching
// engine publishes to per-user Redis channels; the hub bridges those
// channels onto the websocket connections of the matching user.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/gospotdev/gospot/internal/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

type client struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
}

type outbound struct {
	userID  uuid.UUID
	payload []byte
}

// Hub tracks connected clients per user and fans Redis messages out to
// them. Run owns all mutable state; the channels serialize access.
type Hub struct {
	redis      *redis.Client
	logger     *slog.Logger
	register   chan *client
	unregister chan *client
	broadcast  chan outbound
	upgrader   websocket.Upgrader
}

func NewHub(redisClient *redis.Client, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		redis:      redisClient,
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan outbound, 64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers carry the JWT in the request; origin checks are
			// the deployment proxy's concern.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run drains the hub channels and the Redis subscription until ctx is
// cancelled. Call it once, in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.redis.PSubscribe(ctx, "user.*")
	defer pubsub.Close()
	messages := pubsub.Channel()

	clients := make(map[uuid.UUID]map[*client]struct{})

	for {
		select {
		case <-ctx.Done():
			for _, conns := range clients {
				for c := range conns {
					close(c.send)
				}
			}
			return

		case c := <-h.register:
			if clients[c.userID] == nil {
				clients[c.userID] = make(map[*client]struct{})
			}
			clients[c.userID][c] = struct{}{}

		case c := <-h.unregister:
			if conns, ok := clients[c.userID]; ok {
				if _, ok := conns[c]; ok {
					delete(conns, c)
					close(c.send)
					if len(conns) == 0 {
						delete(clients, c.userID)
					}
				}
			}

		case msg, ok := <-messages:
			if !ok {
				h.logger.Warn("redis subscription closed")
				return
			}
			userID, err := userIDFromChannel(msg.Channel)
			if err != nil {
				h.logger.Warn("unroutable pubsub channel", "channel", msg.Channel)
				continue
			}
			h.deliver(clients, outbound{userID: userID, payload: []byte(msg.Payload)})

		case out := <-h.broadcast:
			h.deliver(clients, out)
		}
	}
}

// deliver writes to every connection of the target user, dropping
// clients whose buffers are full.
func (h *Hub) deliver(clients map[uuid.UUID]map[*client]struct{}, out outbound) {
	for c := range clients[out.userID] {
		select {
		case c.send <- out.payload:
		default:
			delete(clients[out.userID], c)
			close(c.send)
		}
	}
}

// Handler upgrades an authenticated request and pumps messages until
// either side goes away.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "missing token"})
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		cl := &client{userID: userID, conn: conn, send: make(chan []byte, 16)}
		h.register <- cl

		go h.writePump(cl)
		go h.readPump(cl)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the socket is push-only. Its job
// is noticing the peer going away.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func userIDFromChannel(channel string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimPrefix(channel, "user."))
}
