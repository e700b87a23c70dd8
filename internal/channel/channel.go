// Package channel maintains the long-lived, bidirectional message connection
// scoped to one room: connection lifecycle, bounded reconnection and message
// (de)serialization. Room semantics live one layer up, in the engine.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/watchlounge/client/internal/auth"
	"github.com/watchlounge/client/internal/domain"
	"github.com/watchlounge/client/pkg/wsrouter"
)

var ErrNotConnected = errors.New("not connected")

// Status is the connection state surfaced for UI feedback.
type Status struct {
	State            domain.ConnState
	ReconnectAttempt int
	Cause            string
}

// Handlers receive inbound traffic, one callback per logical topic. The
// room-sync handler fires for the private one-shot snapshot after every
// (re)join.
type Handlers struct {
	OnChatMessage  func(domain.ChatMessage)
	OnParticipants func([]domain.Participant)
	OnVideoSync    func(domain.PlaybackState)
	OnRoomSync     func(domain.RoomSyncPayload)
	OnStatusChange func(Status)
}

type Config struct {
	URL                  string
	RoomId               string
	UserId               string
	Tokens               auth.TokenProvider
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	Logger               *slog.Logger
}

type Channel struct {
	url                  string
	roomId               string
	userId               string
	tokens               auth.TokenProvider
	maxReconnectAttempts int
	reconnectBaseDelay   time.Duration
	logger               *slog.Logger
	router               *wsrouter.WSRouter
	handlers             Handlers

	mu      sync.Mutex
	conn    *websocket.Conn
	state   domain.ConnState
	attempt int
	closed  bool
	ctx     context.Context

	writeMu sync.Mutex
}

func New(cfg *Config, handlers Handlers) *Channel {
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	baseDelay := cfg.ReconnectBaseDelay
	if baseDelay == 0 {
		baseDelay = time.Second
	}

	c := &Channel{
		url:                  cfg.URL,
		roomId:               cfg.RoomId,
		userId:               cfg.UserId,
		tokens:               cfg.Tokens,
		maxReconnectAttempts: maxAttempts,
		reconnectBaseDelay:   baseDelay,
		logger:               cfg.Logger,
		handlers:             handlers,
		state:                domain.ConnStateDisconnected,
	}

	c.router = c.initRouter(cfg.Logger)

	return c
}

// initRouter wires the inbound topic handlers. Every payload is parsed
// defensively: a malformed frame is logged and dropped, never fatal.
func (c *Channel) initRouter(logger *slog.Logger) *wsrouter.WSRouter {
	router := wsrouter.New(logger)

	router.Handle(domain.MsgChatMessage, func(_ context.Context, _ *websocket.Conn, payload json.RawMessage) error {
		var msg domain.ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal chat message: %w", err)
		}
		if c.handlers.OnChatMessage != nil {
			c.handlers.OnChatMessage(msg)
		}
		return nil
	})

	router.Handle(domain.MsgParticipantsUpdated, func(_ context.Context, _ *websocket.Conn, payload json.RawMessage) error {
		var msg domain.ParticipantsUpdatedPayload
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal participants: %w", err)
		}
		if c.handlers.OnParticipants != nil {
			c.handlers.OnParticipants(msg.Participants)
		}
		return nil
	})

	router.Handle(domain.MsgVideoSync, func(_ context.Context, _ *websocket.Conn, payload json.RawMessage) error {
		var msg domain.PlaybackState
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal video sync: %w", err)
		}
		if c.handlers.OnVideoSync != nil {
			c.handlers.OnVideoSync(msg)
		}
		return nil
	})

	router.Handle(domain.MsgRoomSync, func(_ context.Context, _ *websocket.Conn, payload json.RawMessage) error {
		var msg domain.RoomSyncPayload
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal room sync: %w", err)
		}
		if c.handlers.OnRoomSync != nil {
			c.handlers.OnRoomSync(msg)
		}
		return nil
	})

	return router
}

// Connect establishes the channel and announces the local participant. It
// fails fast when no credential is available.
func (c *Channel) Connect(ctx context.Context) error {
	token, err := c.tokens.ValidToken()
	if err != nil {
		c.setStatus(domain.ConnStateError, 0, "no credential")
		return fmt.Errorf("failed to get credential: %w", err)
	}

	c.mu.Lock()
	if c.state == domain.ConnStateConnected || c.state == domain.ConnStateConnecting {
		c.mu.Unlock()
		return errors.New("already connected")
	}
	c.closed = false
	c.ctx = ctx
	c.mu.Unlock()

	c.setStatus(domain.ConnStateConnecting, 0, "")

	conn, err := c.dial(ctx, token)
	if err != nil {
		c.setStatus(domain.ConnStateError, 0, "handshake failed")
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.acceptConn(conn)

	return nil
}

func (c *Channel) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url+"?token="+token, nil)
	return conn, err
}

// acceptConn installs a freshly dialed connection, publishes the join
// announcement and starts the read loop.
func (c *Channel) acceptConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.attempt = 0
	c.mu.Unlock()

	c.setStatus(domain.ConnStateConnected, 0, "")

	if err := c.publish(domain.MsgJoin, domain.JoinPayload{UserId: c.userId, RoomId: c.roomId}); err != nil {
		c.logger.Warn("failed to publish join", "error", err)
	}

	go c.readLoop(conn)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	err := c.router.ServeConn(c.ctx, conn)

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		// user-initiated disconnect, already reported
		return
	}

	c.logger.Info("connection lost", "error", err)
	c.reconnect()
}

// reconnect retries up to the configured bound with a delay that grows
// linearly with the attempt count. Exhausting the bound is terminal: the
// session surfaces the error and waits for an explicit user retry.
func (c *Channel) reconnect() {
	for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
		c.setStatus(domain.ConnStateConnecting, attempt, "")

		select {
		case <-time.After(time.Duration(attempt) * c.reconnectBaseDelay):
		case <-c.ctx.Done():
			c.setStatus(domain.ConnStateDisconnected, 0, "")
			return
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		token, err := c.tokens.ValidToken()
		if err != nil {
			c.logger.Warn("reconnect aborted: no credential")
			c.setStatus(domain.ConnStateError, attempt, "no credential")
			return
		}

		conn, err := c.dial(c.ctx, token)
		if err != nil {
			c.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		c.logger.Info("reconnected", "attempt", attempt)
		c.acceptConn(conn)
		return
	}

	c.setStatus(domain.ConnStateError, c.maxReconnectAttempts, "reconnect attempts exhausted")
}

// Disconnect publishes a best-effort leave message and tears the connection
// down. Safe to call multiple times and from unload paths.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	connected := c.state == domain.ConnStateConnected
	c.mu.Unlock()

	if conn != nil {
		if connected {
			if err := c.writeJSON(conn, domain.MsgLeave, domain.LeavePayload{UserId: c.userId, RoomId: c.roomId}); err != nil {
				c.logger.Debug("failed to publish leave", "error", err)
			}
		}
		conn.Close()
	}

	c.setStatus(domain.ConnStateDisconnected, 0, "")
}

func (c *Channel) SendChatMessage(content string) error {
	return c.publish(domain.MsgChat, domain.ChatPayload{ChatRoomId: c.roomId, Content: content})
}

func (c *Channel) SendVideoControl(action domain.PlayerAction, currentTime float64) error {
	return c.publish(domain.MsgVideoControl, domain.VideoControlPayload{Action: action, CurrentTime: currentTime})
}

func (c *Channel) publish(messageType string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == domain.ConnStateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.logger.Warn("publish rejected: not connected", "message_type", messageType)
		return ErrNotConnected
	}

	if err := c.writeJSON(conn, messageType, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", messageType, err)
	}

	return nil
}

func (c *Channel) writeJSON(conn *websocket.Conn, messageType string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return conn.WriteJSON(&struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{Type: messageType, Payload: payload})
}

func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, ReconnectAttempt: c.attempt}
}

func (c *Channel) setStatus(state domain.ConnState, attempt int, cause string) {
	c.mu.Lock()
	c.state = state
	c.attempt = attempt
	c.mu.Unlock()

	if c.handlers.OnStatusChange != nil {
		c.handlers.OnStatusChange(Status{State: state, ReconnectAttempt: attempt, Cause: cause})
	}
}
