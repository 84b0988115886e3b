package app

import (
	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/core"
)

// SignalingRelay forwards addressed signaling frames (offer, answer,
// ICE candidate, ready) between two connections. It never looks inside
// the payload; the caller is responsible for stamping the sender
// identity from its own transport record before relaying, so a client
// can never spoof the from field.
type SignalingRelay struct {
	registry *Registry
}

func NewSignalingRelay(registry *Registry) *SignalingRelay {
	return &SignalingRelay{registry: registry}
}

// Relay delivers the frame to target. An unknown or disconnected
// target drops the frame silently: WebRTC signaling is best-effort and
// the initiating side times out at a higher layer.
func (r *SignalingRelay) Relay(from, target core.SessionID, frame core.Frame) {
	sess, ok := r.registry.Session(target)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("from", string(from)).
			Str("target", string(target)).Msg("relay target gone, dropping")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("target", string(target)).Msg("relay send failed")
	}
}
