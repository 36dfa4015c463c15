// Package signal is the WebSocket transport adapter: it upgrades
// connections, owns the read/write pumps and transport keepalive, and
// forwards validated protocol events to the dispatcher.
package signal

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/2run66/freecord/internal/app"
	"github.com/2run66/freecord/internal/config"
	"github.com/2run66/freecord/internal/core"
)

type Controller struct {
	Dispatcher *app.Dispatcher
	Cfg        *config.Config

	joins *JoinLimiter
}

func NewController(d *app.Dispatcher, cfg *config.Config) *Controller {
	return &Controller{
		Dispatcher: d,
		Cfg:        cfg,
		joins:      NewJoinLimiter(cfg.JoinLimit, cfg.JoinWindow),
	}
}

// WsConn wraps *websocket.Conn with a buffered send channel so a slow
// reader backs up its own channel, never the broadcaster.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
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

// Handle upgrades the request and starts the pumps. Each tab gets its
// own connection id; the cookie client token only ties logs together.
func (ctl *Controller) Handle(c *gin.Context) {
	cid := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("cid", string(cid)).
		Str("client", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}
	ctl.Dispatcher.Connect(cid, conn)

	go ctl.writePump(conn)
	go ctl.readPump(cid, conn)
}
