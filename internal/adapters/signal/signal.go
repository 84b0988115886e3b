// Package signal is the WebSocket adapter: it owns connections and
// their pumps, decodes wire frames, and hands everything else to the
// app layer.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/app"
	"github.com/babelroom/babelroom/internal/config"
	"github.com/babelroom/babelroom/internal/core"
	"github.com/babelroom/babelroom/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Registry *app.Registry
	Rooms    *app.RoomRegistry
	Relay    *app.SignalingRelay
	Fanout   *app.Fanout
	Cfg      *config.Config

	limiter *RateLimiter
}

func NewController(cfg *config.Config, registry *app.Registry, rooms *app.RoomRegistry, relay *app.SignalingRelay, fanout *app.Fanout) *Controller {
	return &Controller{
		Registry: registry,
		Rooms:    rooms,
		Relay:    relay,
		Fanout:   fanout,
		Cfg:      cfg,
		limiter:  NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

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

// HandleSignal upgrades the request and runs the connection until it
// drops. Each live connection gets a fresh session id: the server has
// no memory of a dropped connection's prior membership, reconnecting
// clients re-join explicitly.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 64),
	}

	user := &domain.User{Name: "guest"}
	sess := core.NewMemberSession(domain.NewMember(user), conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Registry.Bind(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}
