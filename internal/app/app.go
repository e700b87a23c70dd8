// Package app assembles and runs the watchlounge binaries: the headless
// client agent and the loopback devserver.
package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/watchlounge/client/internal/auth"
	"github.com/watchlounge/client/internal/engine"
	"github.com/watchlounge/client/internal/player"
	"github.com/watchlounge/client/internal/session"
	"github.com/watchlounge/client/pkg/ctxlogger"
)

type AppConfig struct {
	APIURL    string `json:"api_url"`
	RoomId    string `json:"room_id"`
	AuthToken string `json:"-"`
	LogLevel  string `json:"log_level"`

	// VideoDuration is the simulated content length of the headless widget,
	// in seconds.
	VideoDuration int `json:"video_duration"`

	MaxReconnectAttempts int `json:"max_reconnect_attempts"`
	ReconnectBaseDelayMs int `json:"reconnect_base_delay_ms"`
	StalenessThresholdMs int `json:"staleness_threshold_ms"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.APIURL == "" {
		return fmt.Errorf("api url is required")
	}
	if cfg.RoomId == "" {
		return fmt.Errorf("room id is required")
	}
	if cfg.AuthToken == "" {
		return fmt.Errorf("auth token is required")
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h)
}

// wsURL derives the realtime endpoint of a room from the REST base.
func wsURL(apiURL, roomId string) string {
	base := apiURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	return base + "/api/v1/rooms/" + roomId + "/ws"
}

// Run joins the configured room as a headless participant and stays in it
// until the process is signalled to stop.
func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	duration := cfg.VideoDuration
	if duration == 0 {
		duration = 3600
	}

	s, err := session.New(&session.Config{
		APIURL:               cfg.APIURL,
		WSURL:                wsURL(cfg.APIURL, cfg.RoomId),
		RoomId:               cfg.RoomId,
		Tokens:               auth.NewStaticProvider(cfg.AuthToken),
		WidgetFactory:        player.NewHeadlessFactory(float64(duration), 0),
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectBaseDelay:   time.Duration(cfg.ReconnectBaseDelayMs) * time.Millisecond,
		StalenessThreshold:   time.Duration(cfg.StalenessThresholdMs) * time.Millisecond,
		Logger:               logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	s.OnChange(func(snapshot engine.Snapshot) {
		logger.Debug("session state changed",
			"state", snapshot.State,
			"is_host", snapshot.IsHost,
			"participants", len(snapshot.Participants),
			"play_time", snapshot.Playback.CurrentTime,
			"is_playing", snapshot.Playback.IsPlaying,
		)
	})

	if err := s.Join(ctx); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}
	defer s.Leave()

	logger.InfoContext(ctx, "joined room", "room_id", cfg.RoomId)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case <-sig:
	case <-ctx.Done():
	}

	return nil
}
