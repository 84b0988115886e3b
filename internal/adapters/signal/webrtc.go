package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/core"
	"github.com/babelroom/babelroom/internal/protocol"
)

// handleSignaling relays one addressed signaling frame. The from field
// is always replaced with the relay's own record of the sending
// connection before forwarding; whatever the client put there is
// discarded.
func (ctl *Controller) handleSignaling(sid core.SessionID, kind protocol.Kind, data []byte) {
	var target string
	var stamped any

	switch kind {
	case protocol.KindReady:
		var p protocol.Ready
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad ready payload")
			return
		}
		p.From = string(sid)
		target, stamped = p.Target, p
	case protocol.KindOffer:
		var p protocol.Offer
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
			return
		}
		p.From = string(sid)
		target, stamped = p.Target, p
	case protocol.KindAnswer:
		var p protocol.Answer
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
			return
		}
		p.From = string(sid)
		target, stamped = p.Target, p
	case protocol.KindCandidate:
		var p protocol.Candidate
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
			return
		}
		p.From = string(sid)
		target, stamped = p.Target, p
	default:
		return
	}

	if target == "" {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("kind", string(kind)).
			Msg("signaling frame without target")
		return
	}
	frame, err := protocol.Marshal(stamped)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal signaling")
		return
	}
	ctl.Relay.Relay(sid, core.SessionID(target), frame)
}
