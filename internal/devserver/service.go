package devserver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/watchlounge/client/internal/domain"
	"github.com/watchlounge/client/pkg/randstr"
	"github.com/watchlounge/client/pkg/videometa"
)

var ErrPermissionDenied = errors.New("permission denied")

// fetchVideoData is swappable for tests; rooms must be creatable offline.
var fetchVideoData = videometa.Get

const roomIdLength = 8

type iRoomRepo interface {
	SetRoom(ctx context.Context, roomId string, room domain.Room) error
	GetRoom(ctx context.Context, roomId string) (domain.Room, error)
	SetMember(ctx context.Context, params *SetMemberParams) error
	GetMember(ctx context.Context, roomId, userId string) (domain.Participant, error)
	GetMembers(ctx context.Context, roomId string) ([]domain.Participant, error)
	UpdateMemberIsOnline(ctx context.Context, roomId, userId string, isOnline bool) error
	SetPlayer(ctx context.Context, roomId string, state domain.PlaybackState) error
	GetPlayer(ctx context.Context, roomId string) (domain.PlaybackState, error)
}

type service struct {
	roomRepo  iRoomRepo
	conns     *connRegistry
	secret    string
	generator *randstr.Generator
	logger    *slog.Logger
}

func newService(roomRepo iRoomRepo, conns *connRegistry, secret string, logger *slog.Logger) *service {
	return &service{
		roomRepo:  roomRepo,
		conns:     conns,
		secret:    secret,
		generator: randstr.New([]byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890")),
		logger:    logger,
	}
}

type CreateRoomParams struct {
	Title      string
	VideoURL   string
	UserName   string
	UserAvatar string
}

type CreateRoomResponse struct {
	Room      domain.Room `json:"room"`
	UserId    string      `json:"user_id"`
	AuthToken string      `json:"auth_token"`
}

func (s *service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	videoId, err := videometa.ExtractVideoId(params.VideoURL)
	if err != nil {
		return CreateRoomResponse{}, err
	}

	content := domain.Content{
		Id:          uuid.NewString(),
		Title:       params.Title,
		ContentType: domain.ContentTypeMovie,
		VideoId:     videoId,
	}
	// best effort: local rooms must work offline too
	if videoData, err := fetchVideoData(videoId); err == nil {
		content.Title = videoData.Title
		content.ThumbnailURL = videoData.ThumbnailUrl
	} else {
		s.logger.DebugContext(ctx, "failed to fetch video metadata", "video_id", videoId, "error", err)
	}

	roomId := s.generator.GenerateRandomString(roomIdLength)
	userId := uuid.NewString()
	now := time.Now()

	room := domain.Room{
		Id:        roomId,
		Title:     params.Title,
		Content:   content,
		CreatedAt: now.UTC(),
	}
	if err := s.roomRepo.SetRoom(ctx, roomId, room); err != nil {
		return CreateRoomResponse{}, err
	}

	if err := s.roomRepo.SetMember(ctx, &SetMemberParams{
		RoomId: roomId,
		Participant: domain.Participant{
			UserId:     userId,
			UserName:   params.UserName,
			UserAvatar: params.UserAvatar,
			IsHost:     true,
			IsOnline:   false,
			JoinedAt:   now.UnixMilli(),
		},
	}); err != nil {
		return CreateRoomResponse{}, err
	}

	if err := s.roomRepo.SetPlayer(ctx, roomId, domain.PlaybackState{
		Action:      domain.ActionPause,
		CurrentTime: 0,
		IsPlaying:   false,
		Timestamp:   0,
	}); err != nil {
		return CreateRoomResponse{}, err
	}

	authToken, err := s.generateToken(userId, roomId)
	if err != nil {
		return CreateRoomResponse{}, err
	}

	s.logger.InfoContext(ctx, "room created", "room_id", roomId, "video_id", videoId)

	return CreateRoomResponse{Room: room, UserId: userId, AuthToken: authToken}, nil
}

type JoinRoomParams struct {
	RoomId     string
	UserName   string
	UserAvatar string
}

type JoinRoomResponse struct {
	UserId    string `json:"user_id"`
	AuthToken string `json:"auth_token"`
}

func (s *service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	if _, err := s.roomRepo.GetRoom(ctx, params.RoomId); err != nil {
		return JoinRoomResponse{}, err
	}

	userId := uuid.NewString()
	if err := s.roomRepo.SetMember(ctx, &SetMemberParams{
		RoomId: params.RoomId,
		Participant: domain.Participant{
			UserId:     userId,
			UserName:   params.UserName,
			UserAvatar: params.UserAvatar,
			IsHost:     false,
			IsOnline:   false,
			JoinedAt:   time.Now().UnixMilli(),
		},
	}); err != nil {
		return JoinRoomResponse{}, err
	}

	authToken, err := s.generateToken(userId, params.RoomId)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	s.logger.InfoContext(ctx, "member joined room", "room_id", params.RoomId, "user_id", userId)

	return JoinRoomResponse{UserId: userId, AuthToken: authToken}, nil
}

func (s *service) GetRoom(ctx context.Context, roomId string) (domain.Room, error) {
	return s.roomRepo.GetRoom(ctx, roomId)
}

type ConnectMemberResponse struct {
	RoomSync     domain.RoomSyncPayload
	Participants []domain.Participant
}

// ConnectMember registers a live connection, marks the member online and
// assembles the private room snapshot for it.
func (s *service) ConnectMember(ctx context.Context, conn *websocket.Conn, roomId, userId string) (ConnectMemberResponse, error) {
	if _, err := s.roomRepo.GetMember(ctx, roomId, userId); err != nil {
		return ConnectMemberResponse{}, err
	}

	if err := s.conns.Add(conn, roomId, userId); err != nil {
		return ConnectMemberResponse{}, err
	}

	if err := s.roomRepo.UpdateMemberIsOnline(ctx, roomId, userId, true); err != nil {
		return ConnectMemberResponse{}, err
	}

	room, err := s.roomRepo.GetRoom(ctx, roomId)
	if err != nil {
		return ConnectMemberResponse{}, err
	}

	participants, err := s.roomRepo.GetMembers(ctx, roomId)
	if err != nil {
		return ConnectMemberResponse{}, err
	}

	player, err := s.roomRepo.GetPlayer(ctx, roomId)
	if err != nil {
		return ConnectMemberResponse{}, err
	}

	return ConnectMemberResponse{
		RoomSync: domain.RoomSyncPayload{
			Id:           room.Id,
			Title:        room.Title,
			Content:      room.Content,
			Participants: participants,
			PlayTime:     player.CurrentTime,
			IsPlaying:    player.IsPlaying,
		},
		Participants: participants,
	}, nil
}

// DisconnectMember is idempotent: disconnecting an unknown or already
// disconnected member is a no-op.
func (s *service) DisconnectMember(ctx context.Context, roomId, userId string) ([]domain.Participant, error) {
	if _, err := s.conns.RemoveByUser(userId); err != nil && !errors.Is(err, ErrConnNotFound) {
		return nil, err
	}

	if err := s.roomRepo.UpdateMemberIsOnline(ctx, roomId, userId, false); err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return s.roomRepo.GetMembers(ctx, roomId)
}

func (s *service) SendChat(ctx context.Context, roomId, senderId, content string) (domain.ChatMessage, error) {
	sender, err := s.roomRepo.GetMember(ctx, roomId, senderId)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	return domain.ChatMessage{
		Id:         uuid.NewString(),
		SenderId:   senderId,
		SenderName: sender.UserName,
		ChatRoomId: roomId,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// UpdatePlayerState enforces host authority and stamps the broadcast with the
// server's emission time. Clients use the stamp for staleness rejection only.
func (s *service) UpdatePlayerState(ctx context.Context, roomId, senderId string, action domain.PlayerAction, currentTime float64) (domain.PlaybackState, error) {
	sender, err := s.roomRepo.GetMember(ctx, roomId, senderId)
	if err != nil {
		return domain.PlaybackState{}, err
	}
	if !sender.IsHost {
		return domain.PlaybackState{}, ErrPermissionDenied
	}

	isPlaying := action == domain.ActionPlay
	if action == domain.ActionSeek {
		player, err := s.roomRepo.GetPlayer(ctx, roomId)
		if err != nil {
			return domain.PlaybackState{}, err
		}
		isPlaying = player.IsPlaying
	}

	state := domain.PlaybackState{
		Action:      action,
		CurrentTime: currentTime,
		IsPlaying:   isPlaying,
		Timestamp:   time.Now().UnixMilli(),
	}
	if err := s.roomRepo.SetPlayer(ctx, roomId, state); err != nil {
		return domain.PlaybackState{}, err
	}

	return state, nil
}
