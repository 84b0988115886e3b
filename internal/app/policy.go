package app

import (
	"github.com/babelroom/babelroom/internal/core"
	"github.com/babelroom/babelroom/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose send queue stayed full
// during a broadcast.
type Policy interface {
	OnBackpressure(room domain.RoomID, member core.SessionID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(domain.RoomID, core.SessionID) BackpressureAction {
	return KickMember
}
