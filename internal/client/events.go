package client

import (
	"github.com/pion/webrtc/v4"

	"github.com/babelroom/babelroom/internal/protocol"
)

// Handlers is the typed event surface of a session. Handlers are
// registered exactly once, at session creation; a nil field means the
// event is dropped. All callbacks fire from the session's single
// dispatch goroutine, so upper layers see events serialized.
type Handlers struct {
	// OnStatus observes every connection state transition.
	OnStatus func(Status)

	// OnJoined confirms room entry, carrying the resolved room id and
	// display name (which may differ from the requested one).
	OnJoined func(room, user string)

	OnUserJoined func(user, language string)
	OnUserLeft   func(user, language string)
	OnMembers    func(room string, members []protocol.RoomMember)

	OnMessage func(user, text string)

	// OnAudio delivers a fully reassembled clip from a roommate.
	OnAudio func(user string, payload []byte)

	// OnAudioProgress reports partial transfers so callers can show a
	// progress indicator instead of hiding incomplete audio.
	OnAudioProgress func(user string, received, total int)

	// OnTranslatedAudio delivers a translation of a text message in
	// this member's language; audio is empty when the server had no
	// synthesized speech for it.
	OnTranslatedAudio func(user string, audio []byte, language, text string)

	OnRoomDestroyed func(room string)

	// Signaling, addressed to this connection.
	OnReady     func(from string)
	OnOffer     func(from string, sdp webrtc.SessionDescription)
	OnAnswer    func(from string, sdp webrtc.SessionDescription)
	OnCandidate func(from string, candidate webrtc.ICECandidateInit)

	// OnError surfaces protocol-level errors (server error frames,
	// discarded transfers). The session itself keeps running.
	OnError func(err error)
}
