package app

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/core"
	"github.com/babelroom/babelroom/internal/domain"
	"github.com/babelroom/babelroom/internal/protocol"
	"github.com/babelroom/babelroom/internal/translate"
)

// Fanout turns one text message into at most one translation call per
// distinct target language in the room, then routes each result only
// to the members using that language. Translation and synthesis
// failures are isolated per language and never block delivery of the
// original text.
type Fanout struct {
	rooms      *RoomRegistry
	translator translate.Translator
	synth      translate.Synthesizer
	recorder   translate.Recorder
}

func NewFanout(rooms *RoomRegistry, tr translate.Translator, sy translate.Synthesizer, rec translate.Recorder) *Fanout {
	if rec == nil {
		rec = translate.NopRecorder{}
	}
	return &Fanout{rooms: rooms, translator: tr, synth: sy, recorder: rec}
}

// Dispatch broadcasts the original text to the sender's roommates,
// records it, and kicks off per-language translation. It blocks until
// all translation work has been delivered.
func (f *Fanout) Dispatch(ctx context.Context, sid core.SessionID, user, text string, from domain.Language) {
	room, ok := f.rooms.RoomOf(sid)
	if !ok {
		return
	}

	frame, err := protocol.Marshal(protocol.Message{
		Type: protocol.KindMessage, User: user, Text: text, Language: string(from),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.fanout").Msg("marshal message")
		return
	}
	f.rooms.BroadcastFrom(sid, frame)

	go func() {
		if err := f.recorder.LogMessage(context.WithoutCancel(ctx), string(room.ID()), user, text, from, "text"); err != nil {
			log.Warn().Err(err).Str("module", "app.fanout").Msg("history recorder failed")
		}
	}()

	if f.translator == nil {
		return
	}
	targets := room.Languages(from)
	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target domain.Language) {
			defer wg.Done()
			f.translateFor(ctx, room, sid, user, text, from, target)
		}(target)
	}
	wg.Wait()
}

// translateFor handles one target language end to end. One failing
// language never affects the others.
func (f *Fanout) translateFor(ctx context.Context, room *core.Room, sid core.SessionID, user, text string, from, target domain.Language) {
	translated, err := f.translator.Translate(ctx, text, from, target)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.fanout").Str("from", string(from)).
			Str("to", string(target)).Msg("translate failed")
		return
	}

	var audio []byte
	if f.synth != nil {
		audio, err = f.synth.Synthesize(ctx, translated, target)
		if err != nil {
			// Deliver the text translation anyway.
			log.Warn().Err(err).Str("module", "app.fanout").Str("lang", string(target)).Msg("synthesize failed")
			audio = nil
		}
	}

	// Without synthesized speech the result degrades to a plain
	// translated text frame.
	var frame []byte
	if len(audio) == 0 {
		frame, err = protocol.Marshal(protocol.Translated{
			Type:     protocol.KindTranslated,
			User:     user,
			Text:     translated,
			Language: string(target),
		})
	} else {
		frame, err = protocol.Marshal(protocol.TranslatedAudio{
			Type:     protocol.KindTranslatedAudio,
			User:     user,
			Data:     encodeAudio(audio),
			Language: string(target),
			Text:     translated,
		})
	}
	if err != nil {
		log.Error().Err(err).Str("module", "app.fanout").Msg("marshal translation")
		return
	}
	for _, m := range room.MembersSnapshot() {
		if m.SID == sid || m.Language != target {
			continue
		}
		if err := room.SendTo(m.SID, frame); err != nil {
			log.Warn().Err(err).Str("module", "app.fanout").Str("sid", string(m.SID)).Msg("deliver translation")
		}
	}
}

func encodeAudio(audio []byte) string {
	if len(audio) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(audio)
}
