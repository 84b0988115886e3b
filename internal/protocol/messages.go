// Package protocol defines the closed set of wire messages exchanged
// between clients and the server. Every message is a JSON object with a
// "type" tag; readers sniff the tag via Envelope, then unmarshal into
// the concrete struct. Both sides of the connection use these types, so
// the shapes can never drift apart.
package protocol

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

type Kind string

// Client -> server.
const (
	KindJoinRoom   Kind = "join_room"
	KindCreateRoom Kind = "create_room"
	KindMessage    Kind = "message"
	KindAudioChunk Kind = "audio_chunk"
	KindPing       Kind = "ping"
)

// Server -> client.
const (
	KindJoinedRoom      Kind = "joined_room"
	KindUserJoined      Kind = "user_joined"
	KindUserLeft        Kind = "user_left"
	KindUsersInRoom     Kind = "users_in_room"
	KindTranslated      Kind = "translated"
	KindTranslatedAudio Kind = "translated_audio"
	KindRoomDestroyed   Kind = "room_destroyed"
	KindPong            Kind = "pong"
	KindError           Kind = "error"
)

// Addressed signaling, relayed verbatim between two peers.
const (
	KindReady     Kind = "ready"
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
)

// Envelope carries only the tag, for dispatch.
type Envelope struct {
	Type Kind `json:"type"`
}

// Sniff returns the message kind of a raw frame.
func Sniff(data []byte) (Kind, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

// Marshal renders any message for the wire.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

type JoinRoom struct {
	Type     Kind   `json:"type"`
	User     string `json:"user"`
	Room     string `json:"room"`
	Language string `json:"language"`
}

type CreateRoom struct {
	Type     Kind   `json:"type"`
	User     string `json:"user"`
	Language string `json:"language"`
}

type Message struct {
	Type     Kind   `json:"type"`
	User     string `json:"user,omitempty"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// AudioChunk is both the client's send and the server's rebroadcast:
// the server stamps User and passes the rest through untouched. Data is
// base64 (chunk.EncodePayload).
type AudioChunk struct {
	Type     Kind   `json:"type"`
	User     string `json:"user,omitempty"`
	Data     string `json:"data"`
	Index    int    `json:"index"`
	IsLast   bool   `json:"is_last"`
	Total    int    `json:"total"`
	Language string `json:"language,omitempty"`
}

type Ping struct {
	Type Kind `json:"type"`
}

type Pong struct {
	Type Kind `json:"type"`
}

type JoinedRoom struct {
	Type Kind   `json:"type"`
	Room string `json:"room"`
	User string `json:"user"` // resolved name, may differ from the requested one
}

type Presence struct {
	Type     Kind   `json:"type"` // user_joined | user_left
	User     string `json:"user"`
	Language string `json:"language"`
}

type RoomMember struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	IsSelf   bool   `json:"is_self"`
}

type UsersInRoom struct {
	Type    Kind         `json:"type"`
	Room    string       `json:"room"`
	Members []RoomMember `json:"members"`
}

// Translated carries a per-language translation of a text message.
// Sent when no synthesized speech is available for the result.
type Translated struct {
	Type     Kind   `json:"type"`
	User     string `json:"user"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

// TranslatedAudio carries externally synthesized speech for a
// translated message. Data is base64 and never empty; a translation
// without speech goes out as Translated instead.
type TranslatedAudio struct {
	Type     Kind   `json:"type"`
	User     string `json:"user"`
	Data     string `json:"data"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

type RoomDestroyed struct {
	Type Kind   `json:"type"`
	Room string `json:"room"`
}

type Error struct {
	Type   Kind   `json:"type"`
	Reason string `json:"reason"`
}

// Ready announces to one peer that the sender can accept a call. From
// is always stamped by the server from its own record of the sending
// connection; a client-supplied value is discarded.
type Ready struct {
	Type   Kind   `json:"type"`
	Target string `json:"target"`
	From   string `json:"from,omitempty"`
}

type Offer struct {
	Type   Kind                      `json:"type"`
	Target string                    `json:"target"`
	From   string                    `json:"from,omitempty"`
	SDP    webrtc.SessionDescription `json:"sdp"`
}

type Answer struct {
	Type   Kind                      `json:"type"`
	Target string                    `json:"target"`
	From   string                    `json:"from,omitempty"`
	SDP    webrtc.SessionDescription `json:"sdp"`
}

type Candidate struct {
	Type      Kind                    `json:"type"`
	Target    string                  `json:"target"`
	From      string                  `json:"from,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}
