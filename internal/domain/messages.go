package domain

import "encoding/json"

// Message is the envelope for every frame in both directions. Type plays the
// role of a topic: chat, participants and video-sync are fanned out to the
// whole room, ROOM_SYNC is delivered privately to a single connection.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client -> server.
const (
	MsgJoin         = "JOIN"
	MsgLeave        = "LEAVE"
	MsgChat         = "CHAT"
	MsgVideoControl = "VIDEO_CONTROL"
)

// Server -> client.
const (
	MsgChatMessage         = "CHAT_MESSAGE"
	MsgParticipantsUpdated = "PARTICIPANTS_UPDATED"
	MsgVideoSync           = "VIDEO_SYNC"
	MsgRoomSync            = "ROOM_SYNC"
)

type JoinPayload struct {
	UserId string `json:"user_id"`
	RoomId string `json:"room_id"`
}

type LeavePayload struct {
	UserId string `json:"user_id"`
	RoomId string `json:"room_id"`
}

type ChatPayload struct {
	ChatRoomId string `json:"chat_room_id"`
	Content    string `json:"content"`
}

type VideoControlPayload struct {
	Action      PlayerAction `json:"video_control_action"`
	CurrentTime float64      `json:"current_time"`
}

type ParticipantsUpdatedPayload struct {
	Participants []Participant `json:"participants"`
}

// RoomSyncPayload is the one-shot full room snapshot delivered on (re)join.
// PlayTime/IsPlaying form the deferred initial playback state.
type RoomSyncPayload struct {
	Id           string        `json:"id"`
	Title        string        `json:"title"`
	Content      Content       `json:"content"`
	Participants []Participant `json:"participants"`
	PlayTime     float64       `json:"play_time"`
	IsPlaying    bool          `json:"is_playing"`
}
