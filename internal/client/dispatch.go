package client

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/chunk"
	"github.com/babelroom/babelroom/internal/protocol"
)

// dispatch decodes one inbound frame and fires the matching handler.
// Runs on the read goroutine only.
func (s *Session) dispatch(data []byte) {
	kind, err := protocol.Sniff(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("undecodable frame")
		return
	}
	h := &s.cfg.Handlers

	switch kind {
	case protocol.KindJoinedRoom:
		var p protocol.JoinedRoom
		if json.Unmarshal(data, &p) != nil {
			return
		}
		s.mu.Lock()
		// The server-resolved room id is authoritative for re-joins.
		s.room = p.Room
		wait := s.joinWait
		s.joinWait = nil
		s.mu.Unlock()
		if wait != nil {
			select {
			case wait <- p:
			default:
			}
		}
		if h.OnJoined != nil {
			h.OnJoined(p.Room, p.User)
		}

	case protocol.KindUserJoined:
		var p protocol.Presence
		if json.Unmarshal(data, &p) != nil {
			return
		}
		if h.OnUserJoined != nil {
			h.OnUserJoined(p.User, p.Language)
		}

	case protocol.KindUserLeft:
		var p protocol.Presence
		if json.Unmarshal(data, &p) != nil {
			return
		}
		if h.OnUserLeft != nil {
			h.OnUserLeft(p.User, p.Language)
		}

	case protocol.KindUsersInRoom:
		var p protocol.UsersInRoom
		if json.Unmarshal(data, &p) != nil {
			return
		}
		if h.OnMembers != nil {
			h.OnMembers(p.Room, p.Members)
		}

	case protocol.KindMessage:
		var p protocol.Message
		if json.Unmarshal(data, &p) != nil {
			return
		}
		if h.OnMessage != nil {
			h.OnMessage(p.User, p.Text)
		}

	case protocol.KindAudioChunk:
		s.acceptAudioChunk(data)

	case protocol.KindTranslated:
		var p protocol.Translated
		if json.Unmarshal(data, &p) != nil {
			return
		}
		if h.OnTranslatedAudio != nil {
			h.OnTranslatedAudio(p.User, nil, p.Language, p.Text)
		}

	case protocol.KindTranslatedAudio:
		var p protocol.TranslatedAudio
		if json.Unmarshal(data, &p) != nil {
			return
		}
		audio, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			s.emitError(fmt.Errorf("client: bad translated audio encoding: %w", err))
			return
		}
		if h.OnTranslatedAudio != nil {
			h.OnTranslatedAudio(p.User, audio, p.Language, p.Text)
		}

	case protocol.KindRoomDestroyed:
		var p protocol.RoomDestroyed
		if json.Unmarshal(data, &p) != nil {
			return
		}
		s.mu.Lock()
		if s.room == p.Room {
			// Never re-join a destroyed room on reconnect.
			s.hasRoom = false
		}
		s.mu.Unlock()
		if h.OnRoomDestroyed != nil {
			h.OnRoomDestroyed(p.Room)
		}

	case protocol.KindPong:
		// Probe acknowledged; nothing to do.

	case protocol.KindError:
		var p protocol.Error
		if json.Unmarshal(data, &p) != nil {
			return
		}
		s.emitError(errors.New("server: " + p.Reason))

	case protocol.KindReady:
		var p protocol.Ready
		if json.Unmarshal(data, &p) != nil {
			return
		}
		if h.OnReady != nil {
			h.OnReady(p.From)
		}

	case protocol.KindOffer:
		var p protocol.Offer
		if json.Unmarshal(data, &p) != nil {
			return
		}
		if h.OnOffer != nil {
			h.OnOffer(p.From, p.SDP)
		}

	case protocol.KindAnswer:
		var p protocol.Answer
		if json.Unmarshal(data, &p) != nil {
			return
		}
		if h.OnAnswer != nil {
			h.OnAnswer(p.From, p.SDP)
		}

	case protocol.KindCandidate:
		var p protocol.Candidate
		if json.Unmarshal(data, &p) != nil {
			return
		}
		if h.OnCandidate != nil {
			h.OnCandidate(p.From, p.Candidate)
		}

	default:
		log.Debug().Str("module", "client").Str("type", string(kind)).Msg("ignoring unknown frame kind")
	}
}

// acceptAudioChunk feeds one inbound chunk to the reassembler and
// reports progress or completion. Protocol inconsistencies discard the
// transfer and surface through OnError; the session keeps running.
func (s *Session) acceptAudioChunk(data []byte) {
	var p protocol.AudioChunk
	if err := json.Unmarshal(data, &p); err != nil {
		s.emitError(fmt.Errorf("client: bad chunk frame: %w", err))
		return
	}
	payload, err := chunk.DecodePayload(p.Data)
	if err != nil {
		s.emitError(fmt.Errorf("client: bad chunk encoding from %s: %w", p.User, err))
		return
	}

	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	key := chunk.Key{Room: room, Sender: p.User}

	clip, done, err := s.reasm.Accept(key, chunk.Chunk{
		Index:   p.Index,
		Payload: payload,
		IsLast:  p.IsLast,
		Total:   p.Total,
	})
	if err != nil {
		s.emitError(fmt.Errorf("client: transfer from %s discarded: %w", p.User, err))
		return
	}
	h := &s.cfg.Handlers
	if done {
		if h.OnAudio != nil {
			h.OnAudio(p.User, clip)
		}
		return
	}
	if h.OnAudioProgress != nil {
		if received, total, ok := s.reasm.Pending(key); ok {
			h.OnAudioProgress(p.User, received, total)
		}
	}
}

func (s *Session) emitError(err error) {
	log.Warn().Err(err).Str("module", "client").Msg("protocol error")
	if s.cfg.Handlers.OnError != nil {
		s.cfg.Handlers.OnError(err)
	}
}
