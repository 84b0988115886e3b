package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/core"
	"github.com/babelroom/babelroom/internal/protocol"
)

// pingPeriod is the transport keepalive interval; pongWait is how long
// the read side waits for the matching pong before declaring the peer
// dead.
func (ctl *Controller) pingPeriod() time.Duration {
	if ctl.Cfg.PingPeriod > 0 {
		return ctl.Cfg.PingPeriod
	}
	return 54 * time.Second
}

func (ctl *Controller) pongWait() time.Duration {
	return ctl.pingPeriod() * 10 / 9
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.pingPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Info().Err(err).Str("module", "signal").Msg("writePump keepalive failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sid core.SessionID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Rooms.Leave(sid)
		ctl.Registry.Unbind(sid)
		ctl.limiter.Forget(sid)
		c.Close()
	}()

	// A peer that stops answering keepalive pings times out here
	// instead of lingering until TCP gives up.
	wait := ctl.pongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.dispatch(ctx, sid, c, data)
		}
	}
}

func (ctl *Controller) dispatch(ctx context.Context, sid core.SessionID, c *wsConn, data []byte) {
	kind, err := protocol.Sniff(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "bad_payload")
		return
	}

	switch kind {
	case protocol.KindJoinRoom:
		ctl.handleJoin(sid, c, data)
	case protocol.KindCreateRoom:
		ctl.handleCreate(sid, c, data)
	case protocol.KindMessage:
		ctl.handleMessage(ctx, sid, c, data)
	case protocol.KindAudioChunk:
		ctl.handleAudioChunk(sid, c, data)
	case protocol.KindPing:
		ctl.handlePing(c)
	case protocol.KindReady, protocol.KindOffer, protocol.KindAnswer, protocol.KindCandidate:
		ctl.handleSignaling(sid, kind, data)
	default:
		log.Warn().Str("module", "signal").Str("type", string(kind)).Msg("unknown message kind")
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *wsConn, reason string) {
	ctl.sendJSON(c, protocol.Error{Type: protocol.KindError, Reason: reason})
}
