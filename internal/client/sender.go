package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/chunk"
	"github.com/babelroom/babelroom/internal/protocol"
)

// SendAudio transmits one recorded clip as an ordered sequence of
// bounded chunks. An empty clip is a no-op. Between chunks the sender
// pauses for the configured pacing delay and honors ctx cancellation;
// a cancelled transfer stops cleanly between chunks, never mid-frame.
//
// Connectivity is verified immediately before every chunk, and each
// chunk gets a bounded number of reconnect-and-retry cycles before the
// whole transfer aborts with an error the caller can show and retry.
func (s *Session) SendAudio(ctx context.Context, clip []byte) error {
	chunks, err := chunk.Split(clip, s.cfg.ChunkSize)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	lang := s.language
	s.mu.Unlock()

	for i, c := range chunks {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("client: audio transfer cancelled at chunk %d/%d: %w", i, len(chunks), ctx.Err())
			case <-s.done:
				return ErrClosed
			case <-time.After(s.cfg.ChunkPacing):
			}
		}
		msg := protocol.AudioChunk{
			Type:     protocol.KindAudioChunk,
			Data:     c.EncodePayload(),
			Index:    c.Index,
			IsLast:   c.IsLast,
			Total:    c.Total,
			Language: lang,
		}
		if err := s.sendChunk(ctx, msg); err != nil {
			return fmt.Errorf("client: audio transfer aborted at chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// sendChunk writes one chunk, reconnecting and retrying up to the
// configured budget. Each write is a single atomic frame: a failure
// between attempts never leaves a half-sent chunk on the wire.
func (s *Session) sendChunk(ctx context.Context, msg protocol.AudioChunk) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.ChunkRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.done:
				return ErrClosed
			case <-time.After(s.cfg.ChunkPacing):
			}
		}
		if s.Status() != StatusConnected {
			if err := s.tryConnect(ctx); err != nil {
				lastErr = err
				log.Warn().Err(err).Str("module", "client").Int("attempt", attempt+1).
					Int("index", msg.Index).Msg("chunk redial failed")
				continue
			}
		}
		if err := s.send(msg); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("chunk %d failed after %d attempts: %w", msg.Index, s.cfg.ChunkRetries, lastErr)
}
