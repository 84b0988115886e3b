package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/domain"
)

// Room is a threadsafe in-memory membership set. It never closes
// adapter-owned resources.
type Room struct {
	id    domain.RoomID
	mu    sync.RWMutex
	bySID map[SessionID]MemberSession
}

func NewRoom(id domain.RoomID) *Room {
	return &Room{
		id:    id,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

// HasName reports whether any member other than exclude uses this
// display name. A member never collides with its own entry, so a
// re-join keeps its name.
func (r *Room) HasName(name string, exclude SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sid, ms := range r.bySID {
		if sid == exclude {
			continue
		}
		if ms.Meta().User.Name == name {
			return true
		}
	}
	return false
}

func (r *Room) AddMember(sid SessionID, ms MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[sid] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).
		Str("user", ms.Meta().User.Name).Msg("member added")
}

func (r *Room) RemoveMember(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Msg("member removed")
}

func (r *Room) Member(sid SessionID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.bySID[sid]
	return ms, ok
}

// Broadcast fans a frame out to every member except from. Sends are
// non-blocking; sessions whose queues are full come back in Dropped so
// the caller's policy can deal with them.
func (r *Room) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).
		Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// SendTo delivers a frame to a single member, if present.
func (r *Room) SendTo(sid SessionID, data Frame) error {
	r.mu.RLock()
	ms, ok := r.bySID[sid]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return ms.Signal().TrySend(data)
}

// MemberSnapshot is a read-only membership view (no transport fields).
type MemberSnapshot struct {
	SID      SessionID
	Name     string
	Language domain.Language
}

func (r *Room) MembersSnapshot() []MemberSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSnapshot, 0, len(r.bySID))
	for sid, ms := range r.bySID {
		u := ms.Meta().User
		out = append(out, MemberSnapshot{SID: sid, Name: u.Name, Language: u.Language})
	}
	return out
}

// Languages returns the distinct member languages, excluding the given
// one. This is what bounds translation calls by language count rather
// than member count.
func (r *Room) Languages(excluding domain.Language) []domain.Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[domain.Language]struct{}, len(r.bySID))
	out := make([]domain.Language, 0, len(r.bySID))
	for _, ms := range r.bySID {
		lang := ms.Meta().User.Language
		if lang == excluding {
			continue
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	}
	return out
}
