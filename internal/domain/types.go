package domain

import "time"

type ContentType string

const (
	ContentTypeMovie  ContentType = "movie"
	ContentTypeTV     ContentType = "tv"
	ContentTypeSports ContentType = "sports"
)

// Content is the media item a room is watching. Duration here comes from the
// catalog; once the player widget has loaded, its reported duration wins.
type Content struct {
	Id           string      `json:"id"`
	Title        string      `json:"title"`
	ContentType  ContentType `json:"content_type"`
	VideoId      string      `json:"video_id"`
	ThumbnailURL string      `json:"thumbnail_url"`
	Duration     int         `json:"duration"`
}

type Room struct {
	Id        string    `json:"id"`
	Title     string    `json:"title"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Participant struct {
	UserId     string `json:"user_id"`
	UserName   string `json:"user_name"`
	UserAvatar string `json:"user_avatar,omitempty"`
	IsHost     bool   `json:"is_host"`
	IsOnline   bool   `json:"is_online"`
	JoinedAt   int64  `json:"joined_at"`
}

type PlayerAction string

const (
	ActionPlay  PlayerAction = "PLAY"
	ActionPause PlayerAction = "PAUSE"
	ActionSeek  PlayerAction = "SEEK"
)

// PlaybackState is the logical state every participant converges to. Timestamp
// is server-assigned emission time in unix millis and is used only for
// staleness rejection. Timestamp 0 marks an authoritative replay.
type PlaybackState struct {
	Action      PlayerAction `json:"video_control_action"`
	CurrentTime float64      `json:"current_time"`
	IsPlaying   bool         `json:"is_playing"`
	Timestamp   int64        `json:"timestamp"`
}

type ChatMessage struct {
	Id         string    `json:"id"`
	SenderId   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	ChatRoomId string    `json:"chat_room_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

type ConnState string

const (
	ConnStateDisconnected ConnState = "disconnected"
	ConnStateConnecting   ConnState = "connecting"
	ConnStateConnected    ConnState = "connected"
	ConnStateError        ConnState = "error"
)
