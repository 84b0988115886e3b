package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/chunk"
	"github.com/babelroom/babelroom/internal/core"
	"github.com/babelroom/babelroom/internal/protocol"
)

// handleAudioChunk validates one audio chunk and rebroadcasts it to the
// sender's roommates. The server never reassembles: each receiving
// client reconstructs independently.
func (ctl *Controller) handleAudioChunk(sid core.SessionID, c *wsConn, data []byte) {
	if !ctl.limiter.Allow(sid) {
		ctl.sendError(c, "rate_limited")
		return
	}
	var p protocol.AudioChunk
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad chunk payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	payload, err := chunk.DecodePayload(p.Data)
	if err != nil {
		ctl.sendError(c, "bad_encoding")
		return
	}
	if len(payload) > ctl.Cfg.ChunkMaxBytes {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Int("size", len(payload)).
			Int("max", ctl.Cfg.ChunkMaxBytes).Msg("oversized chunk rejected")
		ctl.sendError(c, "chunk_too_large")
		return
	}
	if p.Index < 0 || p.Total <= 0 || p.Index >= p.Total {
		ctl.sendError(c, "bad_chunk_index")
		return
	}

	sess, ok := ctl.Registry.Session(sid)
	if !ok {
		return
	}

	// Stamp the sender's resolved name; everything else passes
	// through untouched and in arrival order.
	p.User = sess.Meta().User.Name
	frame, err := protocol.Marshal(p)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal chunk")
		return
	}
	res := ctl.Rooms.BroadcastFrom(sid, frame)
	log.Debug().Str("module", "signal").Str("sid", string(sid)).Int("index", p.Index).
		Int("total", p.Total).Int("sent_to", res.SentTo).Msg("chunk rebroadcast")
}
