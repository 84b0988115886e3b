package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/core"
	"github.com/babelroom/babelroom/internal/domain"
	"github.com/babelroom/babelroom/internal/protocol"
)

func (ctl *Controller) handleJoin(sid core.SessionID, c *wsConn, data []byte) {
	var p protocol.JoinRoom
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	if p.Room == "" {
		ctl.sendError(c, "empty room")
		return
	}
	if _, err := domain.NewUser(p.User, domain.Language(p.Language)); err != nil {
		ctl.sendError(c, err.Error())
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).
		Str("user", p.User).Msg("join")
	ctl.Rooms.Join(sid, p.User, domain.RoomID(p.Room), domain.Language(p.Language))
}

func (ctl *Controller) handleCreate(sid core.SessionID, c *wsConn, data []byte) {
	var p protocol.CreateRoom
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad create payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	if _, err := domain.NewUser(p.User, domain.Language(p.Language)); err != nil {
		ctl.sendError(c, err.Error())
		return
	}

	roomID := ctl.Rooms.CreateRoom(sid, p.User, domain.Language(p.Language))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("room created")
}
