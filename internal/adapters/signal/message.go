package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/core"
	"github.com/babelroom/babelroom/internal/domain"
	"github.com/babelroom/babelroom/internal/protocol"
)

func (ctl *Controller) handleMessage(ctx context.Context, sid core.SessionID, c *wsConn, data []byte) {
	if !ctl.limiter.Allow(sid) {
		ctl.sendError(c, "rate_limited")
		return
	}
	var p protocol.Message
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad message payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	sess, ok := ctl.Registry.Session(sid)
	if !ok {
		return
	}
	user := sess.Meta().User

	// Translation work runs off the read pump; text ordering across
	// senders carries no guarantee anyway.
	go ctl.Fanout.Dispatch(ctx, sid, user.Name, p.Text, domain.Language(p.Language))
}
