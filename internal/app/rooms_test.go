package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelroom/babelroom/internal/core"
	"github.com/babelroom/babelroom/internal/domain"
	"github.com/babelroom/babelroom/internal/protocol"
)

// fakeConn records every frame fanned out to it.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("queue full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

// kinds decodes the type tag of every recorded frame.
func (c *fakeConn) kinds() []protocol.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Kind, 0, len(c.frames))
	for _, f := range c.frames {
		k, _ := protocol.Sniff(f)
		out = append(out, k)
	}
	return out
}

func (c *fakeConn) count(kind protocol.Kind) int {
	n := 0
	for _, k := range c.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (c *fakeConn) last(t *testing.T, kind protocol.Kind, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if k, _ := protocol.Sniff(c.frames[i]); k == kind {
			require.NoError(t, unmarshal(c.frames[i], v))
			return
		}
	}
	t.Fatalf("no frame of kind %q recorded", kind)
}

func unmarshal(f core.Frame, v any) error {
	return json.Unmarshal(f, v)
}

func bind(reg *Registry, sid core.SessionID) *fakeConn {
	conn := &fakeConn{}
	user := &domain.User{Name: "guest"}
	reg.Bind(sid, core.NewMemberSession(domain.NewMember(user), conn), nil)
	return conn
}

func newRooms() (*Registry, *RoomRegistry) {
	reg := NewRegistry()
	return reg, NewRoomRegistry(reg, SimplePolicy{})
}

const testRoom = domain.RoomID("room-1")

func TestJoinCreatesRoom(t *testing.T) {
	reg, rooms := newRooms()
	conn := bind(reg, "c1")

	resolved := rooms.Join("c1", "Alice", testRoom, "it")
	assert.Equal(t, "Alice", resolved)

	room, ok := rooms.Room(testRoom)
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())

	var joined protocol.JoinedRoom
	conn.last(t, protocol.KindJoinedRoom, &joined)
	assert.Equal(t, string(testRoom), joined.Room)
	assert.Equal(t, "Alice", joined.User)

	var members protocol.UsersInRoom
	conn.last(t, protocol.KindUsersInRoom, &members)
	require.Len(t, members.Members, 1)
	assert.True(t, members.Members[0].IsSelf)
}

func TestJoinUnknownSessionIsNoop(t *testing.T) {
	_, rooms := newRooms()
	resolved := rooms.Join("ghost", "Alice", testRoom, "it")
	assert.Empty(t, resolved)
	_, ok := rooms.Room(testRoom)
	assert.False(t, ok)
}

func TestNameCollisionResolved(t *testing.T) {
	reg, rooms := newRooms()
	c1 := bind(reg, "c1")
	c2 := bind(reg, "c2")

	n1 := rooms.Join("c1", "Alice", testRoom, "it")
	n2 := rooms.Join("c2", "Alice", testRoom, "en")

	assert.NotEqual(t, n1, n2)

	var j1, j2 protocol.JoinedRoom
	c1.last(t, protocol.KindJoinedRoom, &j1)
	c2.last(t, protocol.KindJoinedRoom, &j2)
	assert.Equal(t, n1, j1.User)
	assert.Equal(t, n2, j2.User)
}

func TestPresenceBroadcasts(t *testing.T) {
	reg, rooms := newRooms()
	c1 := bind(reg, "c1")
	bind(reg, "c2")

	rooms.Join("c1", "Alice", testRoom, "it")
	rooms.Join("c2", "Bob", testRoom, "en")

	var joined protocol.Presence
	c1.last(t, protocol.KindUserJoined, &joined)
	assert.Equal(t, "Bob", joined.User)
	assert.Equal(t, "en", joined.Language)

	// Membership snapshot is re-broadcast with per-recipient IsSelf.
	var members protocol.UsersInRoom
	c1.last(t, protocol.KindUsersInRoom, &members)
	require.Len(t, members.Members, 2)
	for _, m := range members.Members {
		assert.Equal(t, m.ID == "c1", m.IsSelf)
	}

	rooms.Leave("c2")
	var left protocol.Presence
	c1.last(t, protocol.KindUserLeft, &left)
	assert.Equal(t, "Bob", left.User)
}

func TestLastLeaveDestroysRoom(t *testing.T) {
	reg, rooms := newRooms()
	c1 := bind(reg, "c1")
	c2 := bind(reg, "c2")

	rooms.Join("c1", "Alice", testRoom, "it")
	rooms.Join("c2", "Bob", testRoom, "en")

	rooms.Leave("c1")
	// Room still has a member: no destruction notice anywhere.
	assert.Zero(t, c1.count(protocol.KindRoomDestroyed))
	assert.Zero(t, c2.count(protocol.KindRoomDestroyed))
	_, ok := rooms.Room(testRoom)
	assert.True(t, ok)

	rooms.Leave("c2")
	_, ok = rooms.Room(testRoom)
	assert.False(t, ok)
	assert.Equal(t, 1, c2.count(protocol.KindRoomDestroyed))
}

func TestLeaveIsIdempotent(t *testing.T) {
	reg, rooms := newRooms()
	bind(reg, "c1")

	rooms.Join("c1", "Alice", testRoom, "it")
	rooms.Leave("c1")
	rooms.Leave("c1")          // already out: no-op
	rooms.Leave("never-bound") // unknown id: no-op
}

func TestRejoinSameRoomKeepsSingleEntry(t *testing.T) {
	reg, rooms := newRooms()
	bind(reg, "c1")

	rooms.Join("c1", "Alice", testRoom, "it")
	rooms.Join("c1", "Alice", testRoom, "it")

	room, ok := rooms.Room(testRoom)
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())
}

func TestRejoinSameRoomKeepsOwnName(t *testing.T) {
	reg, rooms := newRooms()
	conn := bind(reg, "c1")

	assert.Equal(t, "Alice", rooms.Join("c1", "Alice", testRoom, "it"))
	// A member never collides with its own entry on re-join.
	assert.Equal(t, "Alice", rooms.Join("c1", "Alice", testRoom, "it"))

	var joined protocol.JoinedRoom
	conn.last(t, protocol.KindJoinedRoom, &joined)
	assert.Equal(t, "Alice", joined.User)

	sess, ok := reg.Session("c1")
	require.True(t, ok)
	assert.Equal(t, "Alice", sess.Meta().User.Name)
}

func TestConcurrentRejoinAndSnapshot(t *testing.T) {
	reg, rooms := newRooms()
	bind(reg, "c1")
	rooms.Join("c1", "Alice", testRoom, "it")
	room, ok := rooms.Room(testRoom)
	require.True(t, ok)

	// Re-joins install a fresh immutable member; snapshot readers must
	// never observe a torn write under the race detector.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			rooms.Join("c1", "Alice", testRoom, "it")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			for _, m := range room.MembersSnapshot() {
				assert.Equal(t, "Alice", m.Name)
			}
			room.Languages("en")
		}
	}()
	wg.Wait()

	snap := room.MembersSnapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Alice", snap[0].Name)
	assert.Equal(t, domain.Language("it"), snap[0].Language)
}

func TestJoinMovesBetweenRooms(t *testing.T) {
	reg, rooms := newRooms()
	bind(reg, "c1")

	rooms.Join("c1", "Alice", "room-a", "it")
	rooms.Join("c1", "Alice", "room-b", "it")

	// The connection sits in exactly one room at a time, and the
	// abandoned room was torn down with its last member.
	_, ok := rooms.Room("room-a")
	assert.False(t, ok)
	room, ok := rooms.Room("room-b")
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())
}

func TestCreateRoomGeneratesFreshID(t *testing.T) {
	reg, rooms := newRooms()
	bind(reg, "c1")
	bind(reg, "c2")

	id1 := rooms.CreateRoom("c1", "Alice", "it")
	id2 := rooms.CreateRoom("c2", "Bob", "en")

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
	room, ok := rooms.Room(id1)
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())
}

func TestListMembers(t *testing.T) {
	reg, rooms := newRooms()
	bind(reg, "c1")
	bind(reg, "c2")

	rooms.Join("c1", "Alice", testRoom, "it")
	rooms.Join("c2", "Bob", testRoom, "en")

	members := rooms.ListMembers(testRoom, "c2")
	require.Len(t, members, 2)
	for _, m := range members {
		assert.Equal(t, m.ID == "c2", m.IsSelf)
	}

	assert.Nil(t, rooms.ListMembers("missing", "c1"))
}

func TestBroadcastFromExcludesSender(t *testing.T) {
	reg, rooms := newRooms()
	c1 := bind(reg, "c1")
	c2 := bind(reg, "c2")

	rooms.Join("c1", "Alice", testRoom, "it")
	rooms.Join("c2", "Bob", testRoom, "en")

	frame, err := protocol.Marshal(protocol.Message{Type: protocol.KindMessage, User: "Alice", Text: "ciao"})
	require.NoError(t, err)

	before := c1.count(protocol.KindMessage)
	res := rooms.BroadcastFrom("c1", frame)
	assert.Equal(t, 1, res.SentTo)
	assert.Equal(t, before, c1.count(protocol.KindMessage), "sender must not receive its own message")
	assert.Equal(t, 1, c2.count(protocol.KindMessage))
}

func TestBackpressureKicksSlowConsumer(t *testing.T) {
	reg, rooms := newRooms()
	bind(reg, "c1")
	slow := bind(reg, "c2")

	rooms.Join("c1", "Alice", testRoom, "it")
	rooms.Join("c2", "Bob", testRoom, "en")
	slow.fail = true

	frame, err := protocol.Marshal(protocol.Message{Type: protocol.KindMessage, Text: "hi"})
	require.NoError(t, err)
	res := rooms.BroadcastFrom("c1", frame)
	require.Len(t, res.Dropped, 1)

	room, ok := rooms.Room(testRoom)
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount(), "slow consumer kicked from the room")
}
