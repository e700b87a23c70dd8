// Package session wires the catalog, channel, engine and player together and
// exposes the room lifecycle to the surrounding application.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/watchlounge/client/internal/auth"
	"github.com/watchlounge/client/internal/catalog"
	"github.com/watchlounge/client/internal/channel"
	"github.com/watchlounge/client/internal/domain"
	"github.com/watchlounge/client/internal/engine"
	"github.com/watchlounge/client/internal/player"
)

type Config struct {
	// APIURL is the REST collaborator base, e.g. http://localhost:8080.
	APIURL string
	// WSURL is the room's realtime endpoint, e.g.
	// ws://localhost:8080/api/v1/rooms/{id}/ws.
	WSURL  string
	RoomId string
	Tokens auth.TokenProvider

	WidgetFactory player.Factory

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	StalenessThreshold   time.Duration
	// GuardRelease keeps echo suppression engaged after a sync-driven player
	// call, covering widgets that emit their events asynchronously.
	GuardRelease  time.Duration
	ProbeInterval time.Duration

	Logger *slog.Logger
}

type Session struct {
	roomId  string
	catalog *catalog.Client
	channel *channel.Channel
	engine  *engine.Engine
	adapter *player.Adapter
	logger  *slog.Logger

	leaveOnce sync.Once
}

func New(cfg *Config) (*Session, error) {
	token, err := cfg.Tokens.ValidToken()
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	userId, err := auth.UserIdFromToken(token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local user: %w", err)
	}

	guardRelease := cfg.GuardRelease
	if guardRelease == 0 {
		guardRelease = 100 * time.Millisecond
	}

	s := &Session{
		roomId:  cfg.RoomId,
		catalog: catalog.NewClient(cfg.APIURL, cfg.Tokens, cfg.Logger),
		logger:  cfg.Logger,
	}

	s.channel = channel.New(&channel.Config{
		URL:                  cfg.WSURL,
		RoomId:               cfg.RoomId,
		UserId:               userId,
		Tokens:               cfg.Tokens,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		Logger:               cfg.Logger,
	}, channel.Handlers{
		OnChatMessage:  func(msg domain.ChatMessage) { s.engine.HandleChatMessage(msg) },
		OnParticipants: func(list []domain.Participant) { s.engine.HandleParticipants(list) },
		OnVideoSync:    func(sync domain.PlaybackState) { s.engine.HandleVideoSync(sync) },
		OnRoomSync:     func(sync domain.RoomSyncPayload) { s.engine.HandleRoomSync(sync) },
		OnStatusChange: func(status channel.Status) { s.engine.HandleConnStatus(status) },
	})

	s.adapter = player.NewAdapter(cfg.WidgetFactory, &player.Config{
		ProbeInterval: cfg.ProbeInterval,
		Logger:        cfg.Logger,
	})
	guard := player.NewSyncGuard(guardRelease)

	s.engine = engine.New(s.channel, s.adapter, guard, &engine.Config{
		UserId:             userId,
		StalenessThreshold: cfg.StalenessThreshold,
		Logger:             cfg.Logger,
	})

	s.adapter.OnReady(s.engine.HandlePlayerReady)
	s.adapter.OnEvent(s.engine.HandlePlayerEvent)

	return s, nil
}

// Join loads room metadata, initializes the player for its content and
// connects the realtime channel.
func (s *Session) Join(ctx context.Context) error {
	room, err := s.catalog.GetRoom(ctx, s.roomId)
	if err != nil {
		if errors.Is(err, catalog.ErrRoomNotFound) {
			s.engine.Fail("room not found")
		} else {
			s.engine.Fail("failed to load room")
		}
		return fmt.Errorf("failed to load room: %w", err)
	}

	s.engine.SetRoom(room)

	if err := s.adapter.SetVideo(room.Content.VideoId); err != nil {
		s.engine.Fail("failed to initialize player")
		return fmt.Errorf("failed to initialize player: %w", err)
	}

	if err := s.channel.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	return nil
}

// Leave tears the whole session down: best-effort leave message, channel
// close, player destroy. Safe to call from both explicit user action and
// unload paths, any number of times.
func (s *Session) Leave() {
	s.leaveOnce.Do(func() {
		s.channel.Disconnect()
		s.adapter.Destroy()
		s.engine.Leave()
		s.logger.Info("session left", "room_id", s.roomId)
	})
}

func (s *Session) SendChat(content string) error {
	return s.channel.SendChatMessage(content)
}

func (s *Session) RequestControl(action domain.PlayerAction, currentTime float64) error {
	return s.engine.RequestControl(action, currentTime)
}

func (s *Session) State() engine.Snapshot {
	return s.engine.Snapshot()
}

func (s *Session) OnChange(fn func(engine.Snapshot)) {
	s.engine.OnChange(fn)
}
