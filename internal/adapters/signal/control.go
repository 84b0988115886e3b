package signal

import "github.com/babelroom/babelroom/internal/protocol"

func (ctl *Controller) handlePing(c *wsConn) {
	ctl.sendJSON(c, protocol.Pong{Type: protocol.KindPong})
}
