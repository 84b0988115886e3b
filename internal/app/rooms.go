package app

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/core"
	"github.com/babelroom/babelroom/internal/domain"
	"github.com/babelroom/babelroom/internal/protocol"
)

// RoomRegistry is the authoritative room -> members mapping. All
// membership mutation goes through it, and it owns the presence
// broadcasts that keep clients in sync: clients never infer membership
// from anything but these.
type RoomRegistry struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]*core.Room
	registry *Registry
	policy   Policy
}

func NewRoomRegistry(registry *Registry, policy Policy) *RoomRegistry {
	return &RoomRegistry{
		rooms:    make(map[domain.RoomID]*core.Room),
		registry: registry,
		policy:   policy,
	}
}

// Join puts the session into roomID, creating the room on first join.
// A display name already present in the room gets a disambiguating
// suffix; the resolved name is returned and confirmed to the joiner via
// joined_room. Joining with an unknown session id is a no-op.
func (rr *RoomRegistry) Join(sid core.SessionID, name string, roomID domain.RoomID, lang domain.Language) string {
	sess, ok := rr.registry.Session(sid)
	if !ok {
		log.Warn().Str("module", "app.rooms").Str("sid", string(sid)).Msg("join from unknown session")
		return ""
	}
	// A connection sits in at most one room.
	if prev, ok := rr.registry.RoomOf(sid); ok && prev != roomID {
		rr.Leave(sid)
	}

	room := rr.getOrCreate(roomID)
	resolved := rr.resolveName(room, sid, name)

	// Member meta is immutable once published: a join installs a fresh
	// member session over the same transport instead of mutating shared
	// state that concurrent snapshot readers may hold.
	member := core.NewMemberSession(
		domain.NewMember(&domain.User{Name: resolved, Language: lang}),
		sess.Signal(),
	)
	rr.registry.UpdateSession(sid, member)

	room.AddMember(sid, member)
	rr.registry.SetRoom(sid, roomID)
	log.Info().Str("module", "app.rooms").Str("sid", string(sid)).Str("room", string(roomID)).
		Str("user", resolved).Str("lang", string(lang)).Msg("joined room")

	rr.sendTo(room, sid, protocol.JoinedRoom{Type: protocol.KindJoinedRoom, Room: string(roomID), User: resolved})
	rr.broadcastFrom(room, sid, protocol.Presence{Type: protocol.KindUserJoined, User: resolved, Language: string(lang)})
	rr.broadcastMembers(room)
	return resolved
}

// CreateRoom generates a fresh room id and joins the session to it.
func (rr *RoomRegistry) CreateRoom(sid core.SessionID, name string, lang domain.Language) domain.RoomID {
	roomID := domain.NewRoomID()
	rr.Join(sid, name, roomID, lang)
	return roomID
}

// Leave removes the session from whatever room it occupies. Unknown
// session ids and sessions outside any room are no-ops (idempotent
// cleanup: connection close and explicit leave may both fire). The last
// member leaving tears the room down; the departing connection, which
// still caches the room id, gets the terminal room_destroyed notice.
func (rr *RoomRegistry) Leave(sid core.SessionID) {
	roomID, ok := rr.registry.RoomOf(sid)
	if !ok {
		return
	}
	rr.mu.RLock()
	room, ok := rr.rooms[roomID]
	rr.mu.RUnlock()
	if !ok {
		rr.registry.ClearRoom(sid)
		return
	}

	var name string
	var lang domain.Language
	if ms, ok := room.Member(sid); ok {
		name = ms.Meta().User.Name
		lang = ms.Meta().User.Language
	}
	room.RemoveMember(sid)
	rr.registry.ClearRoom(sid)
	log.Info().Str("module", "app.rooms").Str("sid", string(sid)).Str("room", string(roomID)).
		Str("user", name).Msg("left room")

	if room.MemberCount() == 0 {
		rr.mu.Lock()
		delete(rr.rooms, roomID)
		rr.mu.Unlock()
		log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Msg("room destroyed")
		rr.notify(sid, protocol.RoomDestroyed{Type: protocol.KindRoomDestroyed, Room: string(roomID)})
		return
	}

	rr.broadcastFrom(room, sid, protocol.Presence{Type: protocol.KindUserLeft, User: name, Language: string(lang)})
	rr.broadcastMembers(room)
}

// Room returns the live room, if it exists.
func (rr *RoomRegistry) Room(roomID domain.RoomID) (*core.Room, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	room, ok := rr.rooms[roomID]
	return room, ok
}

// RoomOf resolves the sender's current room.
func (rr *RoomRegistry) RoomOf(sid core.SessionID) (*core.Room, bool) {
	roomID, ok := rr.registry.RoomOf(sid)
	if !ok {
		return nil, false
	}
	return rr.Room(roomID)
}

// ListMembers renders the membership snapshot from the requester's
// point of view (IsSelf is relative to them).
func (rr *RoomRegistry) ListMembers(roomID domain.RoomID, requester core.SessionID) []protocol.RoomMember {
	room, ok := rr.Room(roomID)
	if !ok {
		return nil
	}
	return membersFor(room, requester)
}

// RoomList is the read model for the rooms listing API.
type RoomList struct {
	ID          string `json:"id"`
	MemberCount int    `json:"member_count"`
}

func (rr *RoomRegistry) List() []RoomList {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	out := make([]RoomList, 0, len(rr.rooms))
	for id, room := range rr.rooms {
		out = append(out, RoomList{ID: string(id), MemberCount: room.MemberCount()})
	}
	return out
}

// BroadcastFrom fans a frame out to the sender's roommates and applies
// the backpressure policy to any member whose queue was full.
func (rr *RoomRegistry) BroadcastFrom(sid core.SessionID, frame core.Frame) core.PublishResult {
	room, ok := rr.RoomOf(sid)
	if !ok {
		return core.PublishResult{}
	}
	res := room.Broadcast(sid, frame)
	rr.applyPolicy(room, res)
	return res
}

func (rr *RoomRegistry) applyPolicy(room *core.Room, res core.PublishResult) {
	if rr.policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch rr.policy.OnBackpressure(room.ID(), slow) {
		case KickMember:
			log.Warn().Str("module", "app.rooms").Str("sid", string(slow)).Msg("kicking slow consumer")
			rr.Leave(slow)
			rr.registry.Cancel(slow)
		case DropFrame, NoAction:
		}
	}
}

func (rr *RoomRegistry) getOrCreate(roomID domain.RoomID) *core.Room {
	rr.mu.RLock()
	room, ok := rr.rooms[roomID]
	rr.mu.RUnlock()
	if ok {
		return room
	}
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if room, ok = rr.rooms[roomID]; ok {
		return room
	}
	room = core.NewRoom(roomID)
	rr.rooms[roomID] = room
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Msg("room created")
	return room
}

// resolveName disambiguates display-name collisions against the other
// members of the room; the session's own entry never counts.
func (rr *RoomRegistry) resolveName(room *core.Room, sid core.SessionID, name string) string {
	if name == "" {
		name = "guest"
	}
	resolved := name
	for n := 2; room.HasName(resolved, sid); n++ {
		resolved = fmt.Sprintf("%s (%d)", name, n)
	}
	if resolved != name {
		log.Info().Str("module", "app.rooms").Str("sid", string(sid)).
			Str("requested", name).Str("resolved", resolved).Msg("display name collision")
	}
	return resolved
}

func membersFor(room *core.Room, requester core.SessionID) []protocol.RoomMember {
	snap := room.MembersSnapshot()
	out := make([]protocol.RoomMember, 0, len(snap))
	for _, m := range snap {
		out = append(out, protocol.RoomMember{
			ID:       string(m.SID),
			Name:     m.Name,
			Language: string(m.Language),
			IsSelf:   m.SID == requester,
		})
	}
	return out
}

// broadcastMembers pushes the full membership snapshot to every member,
// each with IsSelf computed for the recipient.
func (rr *RoomRegistry) broadcastMembers(room *core.Room) {
	for _, m := range room.MembersSnapshot() {
		rr.sendTo(room, m.SID, protocol.UsersInRoom{
			Type:    protocol.KindUsersInRoom,
			Room:    string(room.ID()),
			Members: membersFor(room, m.SID),
		})
	}
}

func (rr *RoomRegistry) broadcastFrom(room *core.Room, sid core.SessionID, v any) {
	frame, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Msg("marshal broadcast")
		return
	}
	rr.applyPolicy(room, room.Broadcast(sid, frame))
}

func (rr *RoomRegistry) sendTo(room *core.Room, sid core.SessionID, v any) {
	frame, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Msg("marshal send")
		return
	}
	if err := room.SendTo(sid, frame); err != nil {
		log.Warn().Err(err).Str("module", "app.rooms").Str("sid", string(sid)).Msg("send failed")
	}
}

// notify reaches a session directly through the connection registry,
// for notices that must still arrive when the session has already left
// its room (the terminal room_destroyed case).
func (rr *RoomRegistry) notify(sid core.SessionID, v any) {
	sess, ok := rr.registry.Session(sid)
	if !ok {
		return
	}
	frame, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Msg("marshal notify")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.rooms").Str("sid", string(sid)).Msg("notify failed")
	}
}
