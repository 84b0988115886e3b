package domain

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

type RoomID string

// NewRoomID generates a fresh room identifier. ULIDs sort by creation
// time, which keeps room listings stable without extra bookkeeping.
func NewRoomID() RoomID {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return RoomID(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}
