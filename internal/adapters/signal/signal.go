package signal

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/config"
	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/sfu"
)

var ErrBackpressure = errors.New("backpressure")

// Controller owns the WebSocket signaling surface. One instance serves all
// connections; per-connection state lives on wsConn.
type Controller struct {
	Orch *sfu.Orchestrator
	Cfg  *config.Config
}

func NewController(orch *sfu.Orchestrator, cfg *config.Config) *Controller {
	return &Controller{Orch: orch, Cfg: cfg}
}

// wsConn wraps one websocket with a buffered outbound queue. It implements
// core.SignalConnection and core.Notifier.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	client domain.ClientID
	room   domain.RoomID

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Notify pushes a server-initiated event. Backpressure drops the frame;
// push notifications are advisory and must not block a queue turn.
func (c *wsConn) Notify(event string, payload any) {
	b, err := json.Marshal(response{Type: event, OK: true, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", event).Msg("notify marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("event", event).Str("client", string(c.client)).Msg("notify dropped")
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the connection and binds the participant's client
// session. Claims are placed on the gin context by the auth middleware.
func (ctl *Controller) HandleSignal(c *gin.Context) {
	clientID := domain.ClientID(c.GetString("client_id"))
	roomID := domain.RoomID(c.GetString("room_id"))
	role := domain.Role(c.GetString("role"))
	name := c.GetString("display_name")

	participant, err := domain.NewParticipant(clientID, name, role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn:   ws,
		send:   make(chan core.Frame, 32),
		client: clientID,
		room:   roomID,
	}

	if _, err := ctl.Orch.Connect(c.Request.Context(), roomID, participant, conn); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("client", string(clientID)).Msg("connect failed")
		ctl.sendError(conn, "", err)
		conn.Close()
		return
	}

	log.Info().Str("module", "signal").Str("client", string(clientID)).Str("room", string(roomID)).Msg("signaling connected")

	// Inactivity force-closes the client and all its resources unless
	// renewed traffic resets the timer first.
	idle := time.AfterFunc(ctl.Cfg.DisconnectTimeout, func() {
		log.Info().Str("module", "signal").Str("client", string(clientID)).Msg("disconnect timeout")
		if err := ctl.Orch.Disconnect(contextless(), roomID, clientID); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("disconnect cleanup")
		}
		conn.Close()
	})

	go ctl.writePump(conn)
	ctl.readPump(conn, idle)
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *wsConn, id string, err error) {
	ctl.sendJSON(c, response{
		ID:   id,
		Type: "error",
		Error: &errorBody{
			Code:    string(sfu.CodeOf(err)),
			Message: err.Error(),
		},
	})
}
