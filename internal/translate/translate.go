// Package translate declares the external capabilities the server
// invokes around text messages. Implementations live outside this
// module (hosted translation / TTS / history services); the protocol
// core only depends on these interfaces.
package translate

import (
	"context"

	"github.com/babelroom/babelroom/internal/domain"
)

type Translator interface {
	Translate(ctx context.Context, text string, from, to domain.Language) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, lang domain.Language) ([]byte, error)
}

// Recorder receives completed text messages for history. Fire and
// forget: failures are logged by the caller, never propagated.
type Recorder interface {
	LogMessage(ctx context.Context, room, user, text string, lang domain.Language, kind string) error
}

// NopRecorder drops everything. Used when no history service is wired.
type NopRecorder struct{}

func (NopRecorder) LogMessage(context.Context, string, string, string, domain.Language, string) error {
	return nil
}
