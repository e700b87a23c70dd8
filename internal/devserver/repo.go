package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/watchlounge/client/internal/domain"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrMemberNotFound = errors.New("member not found")
)

type repoRoom struct {
	Title       string `redis:"title"`
	ContentJSON string `redis:"content"`
	CreatedAt   int64  `redis:"created_at"`
}

type repoMember struct {
	UserName   string `redis:"user_name"`
	UserAvatar string `redis:"user_avatar"`
	IsHost     bool   `redis:"is_host"`
	IsOnline   bool   `redis:"is_online"`
	JoinedAt   int64  `redis:"joined_at"`
}

type repoPlayer struct {
	Action      string  `redis:"action"`
	CurrentTime float64 `redis:"current_time"`
	IsPlaying   bool    `redis:"is_playing"`
	UpdatedAt   int64   `redis:"updated_at"`
}

type repo struct {
	rc             *redis.Client
	expireDuration time.Duration
}

func NewRepo(rc *redis.Client, expireDuration time.Duration) *repo {
	return &repo{rc: rc, expireDuration: expireDuration}
}

func (r *repo) getRoomKey(roomId string) string {
	return "room:" + roomId
}

func (r *repo) getMembersKey(roomId string) string {
	return "room:" + roomId + ":members"
}

func (r *repo) getMemberKey(roomId, userId string) string {
	return "room:" + roomId + ":member:" + userId
}

func (r *repo) getPlayerKey(roomId string) string {
	return "room:" + roomId + ":player"
}

func (r *repo) SetRoom(ctx context.Context, roomId string, room domain.Room) error {
	contentJSON, err := json.Marshal(room.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}

	roomKey := r.getRoomKey(roomId)
	if err := r.rc.HSet(ctx, roomKey, repoRoom{
		Title:       room.Title,
		ContentJSON: string(contentJSON),
		CreatedAt:   room.CreatedAt.Unix(),
	}).Err(); err != nil {
		return fmt.Errorf("failed to set room: %w", err)
	}

	r.rc.Expire(ctx, roomKey, r.expireDuration)

	return nil
}

func (r *repo) GetRoom(ctx context.Context, roomId string) (domain.Room, error) {
	roomKey := r.getRoomKey(roomId)
	res, err := r.rc.Exists(ctx, roomKey).Result()
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to check if room exists: %w", err)
	}
	if res == 0 {
		return domain.Room{}, ErrRoomNotFound
	}

	var stored repoRoom
	if err := r.rc.HGetAll(ctx, roomKey).Scan(&stored); err != nil {
		return domain.Room{}, fmt.Errorf("failed to get room: %w", err)
	}

	var content domain.Content
	if err := json.Unmarshal([]byte(stored.ContentJSON), &content); err != nil {
		return domain.Room{}, fmt.Errorf("failed to unmarshal content: %w", err)
	}

	r.rc.Expire(ctx, roomKey, r.expireDuration)

	return domain.Room{
		Id:        roomId,
		Title:     stored.Title,
		Content:   content,
		CreatedAt: time.Unix(stored.CreatedAt, 0).UTC(),
	}, nil
}

type SetMemberParams struct {
	RoomId      string
	Participant domain.Participant
}

func (r *repo) SetMember(ctx context.Context, params *SetMemberParams) error {
	p := params.Participant
	memberKey := r.getMemberKey(params.RoomId, p.UserId)
	if err := r.rc.HSet(ctx, memberKey, repoMember{
		UserName:   p.UserName,
		UserAvatar: p.UserAvatar,
		IsHost:     p.IsHost,
		IsOnline:   p.IsOnline,
		JoinedAt:   p.JoinedAt,
	}).Err(); err != nil {
		return fmt.Errorf("failed to set member: %w", err)
	}

	membersKey := r.getMembersKey(params.RoomId)
	if err := r.rc.SAdd(ctx, membersKey, p.UserId).Err(); err != nil {
		return fmt.Errorf("failed to add member to list: %w", err)
	}

	r.rc.Expire(ctx, memberKey, r.expireDuration)
	r.rc.Expire(ctx, membersKey, r.expireDuration)

	return nil
}

func (r *repo) GetMember(ctx context.Context, roomId, userId string) (domain.Participant, error) {
	memberKey := r.getMemberKey(roomId, userId)
	res, err := r.rc.Exists(ctx, memberKey).Result()
	if err != nil {
		return domain.Participant{}, fmt.Errorf("failed to check if member exists: %w", err)
	}
	if res == 0 {
		return domain.Participant{}, ErrMemberNotFound
	}

	var stored repoMember
	if err := r.rc.HGetAll(ctx, memberKey).Scan(&stored); err != nil {
		return domain.Participant{}, fmt.Errorf("failed to get member: %w", err)
	}

	return domain.Participant{
		UserId:     userId,
		UserName:   stored.UserName,
		UserAvatar: stored.UserAvatar,
		IsHost:     stored.IsHost,
		IsOnline:   stored.IsOnline,
		JoinedAt:   stored.JoinedAt,
	}, nil
}

// GetMembers returns the full roster ordered by join time. The roster is
// always sent wholesale; clients replace, never patch.
func (r *repo) GetMembers(ctx context.Context, roomId string) ([]domain.Participant, error) {
	userIds, err := r.rc.SMembers(ctx, r.getMembersKey(roomId)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get member ids: %w", err)
	}

	participants := make([]domain.Participant, 0, len(userIds))
	for _, userId := range userIds {
		participant, err := r.GetMember(ctx, roomId, userId)
		if err != nil {
			return nil, err
		}

		participants = append(participants, participant)
	}

	sort.Slice(participants, func(i, j int) bool {
		if participants[i].JoinedAt != participants[j].JoinedAt {
			return participants[i].JoinedAt < participants[j].JoinedAt
		}
		return participants[i].UserId < participants[j].UserId
	})

	return participants, nil
}

func (r *repo) UpdateMemberIsOnline(ctx context.Context, roomId, userId string, isOnline bool) error {
	memberKey := r.getMemberKey(roomId, userId)
	res, err := r.rc.Exists(ctx, memberKey).Result()
	if err != nil {
		return fmt.Errorf("failed to check if member exists: %w", err)
	}
	if res == 0 {
		return ErrMemberNotFound
	}

	if err := r.rc.HSet(ctx, memberKey, "is_online", isOnline).Err(); err != nil {
		return fmt.Errorf("failed to update member is online: %w", err)
	}

	return nil
}

func (r *repo) SetPlayer(ctx context.Context, roomId string, state domain.PlaybackState) error {
	playerKey := r.getPlayerKey(roomId)
	if err := r.rc.HSet(ctx, playerKey, repoPlayer{
		Action:      string(state.Action),
		CurrentTime: state.CurrentTime,
		IsPlaying:   state.IsPlaying,
		UpdatedAt:   state.Timestamp,
	}).Err(); err != nil {
		return fmt.Errorf("failed to set player: %w", err)
	}

	r.rc.Expire(ctx, playerKey, r.expireDuration)

	return nil
}

func (r *repo) GetPlayer(ctx context.Context, roomId string) (domain.PlaybackState, error) {
	var stored repoPlayer
	if err := r.rc.HGetAll(ctx, r.getPlayerKey(roomId)).Scan(&stored); err != nil {
		return domain.PlaybackState{}, fmt.Errorf("failed to get player: %w", err)
	}

	return domain.PlaybackState{
		Action:      domain.PlayerAction(stored.Action),
		CurrentTime: stored.CurrentTime,
		IsPlaying:   stored.IsPlaying,
		Timestamp:   stored.UpdatedAt,
	}, nil
}
