// Package engine holds the authoritative client-side state machine for one
// room session: roster, host identity and the playback state every
// participant converges to.
package engine

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/watchlounge/client/internal/channel"
	"github.com/watchlounge/client/internal/domain"
	"github.com/watchlounge/client/internal/player"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotConnected     = errors.New("not connected")
)

type State string

const (
	StateLoading            State = "loading-initial-data"
	StateAwaitingConnection State = "awaiting-connection"
	StateConnected          State = "connected"
	StateReconnecting       State = "reconnecting"
	StateLeft               State = "left"
	StateError              State = "error"
)

// publisher is what the engine needs from the realtime channel. Local host
// actions are published, never applied to the player directly; the resulting
// state change comes back through the video-sync topic like everyone else's.
type publisher interface {
	SendVideoControl(action domain.PlayerAction, currentTime float64) error
}

// playerControl is what the engine needs from the player adapter.
type playerControl interface {
	IsReady() bool
	Play() error
	Pause() error
	SeekTo(seconds float64) error
	Duration() (int, error)
}

// syncGuard marks programmatic player mutations so their echoes are ignored.
type syncGuard interface {
	Apply(fn func())
	Suppressed() bool
}

type Config struct {
	UserId string
	// StalenessThreshold rejects sync messages older than this, except
	// timestamp-0 replays which are always applied.
	StalenessThreshold time.Duration
	Logger             *slog.Logger
	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

// Snapshot is the observable session state handed to the presentation layer.
type Snapshot struct {
	State            State
	Room             domain.Room
	Participants     []domain.Participant
	IsHost           bool
	Playback         domain.PlaybackState
	ConnState        domain.ConnState
	ReconnectAttempt int
	Messages         []domain.ChatMessage
	LastError        string
}

type Engine struct {
	userId    string
	staleness time.Duration
	logger    *slog.Logger
	now       func() time.Time
	publisher publisher
	player    playerControl
	guard     syncGuard

	mu               sync.Mutex
	state            State
	room             domain.Room
	participants     []domain.Participant
	isHost           bool
	playback         domain.PlaybackState
	pendingInitial   *domain.PlaybackState
	connState        domain.ConnState
	reconnectAttempt int
	messages         []domain.ChatMessage
	lastError        string
	onChange         func(Snapshot)
}

func New(pub publisher, pc playerControl, guard syncGuard, cfg *Config) *Engine {
	staleness := cfg.StalenessThreshold
	if staleness == 0 {
		staleness = 10 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		userId:    cfg.UserId,
		staleness: staleness,
		logger:    cfg.Logger,
		now:       now,
		publisher: pub,
		player:    pc,
		guard:     guard,
		state:     StateLoading,
		connState: domain.ConnStateDisconnected,
	}
}

// OnChange subscribes the presentation layer to state transitions. Exactly
// one subscriber; the callback runs outside the engine lock.
func (e *Engine) OnChange(fn func(Snapshot)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// SetRoom installs the REST-fetched room metadata and leaves the loading
// state. Host status stays false until the server proves otherwise.
func (e *Engine) SetRoom(room domain.Room) {
	e.mu.Lock()
	e.room = room
	e.state = StateAwaitingConnection
	e.mu.Unlock()

	e.notify()
}

// Fail moves the session to the terminal error state.
func (e *Engine) Fail(cause string) {
	e.mu.Lock()
	e.state = StateError
	e.lastError = cause
	e.mu.Unlock()

	e.notify()
}

// HandleConnStatus tracks the channel's lifecycle. Exhausted reconnects are
// terminal; anything short of that keeps the session alive.
func (e *Engine) HandleConnStatus(s channel.Status) {
	e.mu.Lock()
	e.connState = s.State
	e.reconnectAttempt = s.ReconnectAttempt

	switch s.State {
	case domain.ConnStateConnected:
		e.state = StateConnected
	case domain.ConnStateConnecting:
		if s.ReconnectAttempt > 0 {
			e.state = StateReconnecting
		}
	case domain.ConnStateError:
		e.state = StateError
		e.lastError = s.Cause
	case domain.ConnStateDisconnected:
		if e.state != StateLeft {
			e.state = StateAwaitingConnection
		}
	}
	e.mu.Unlock()

	e.notify()
}

// HandleRoomSync applies the private full-room snapshot delivered on join.
// The carried playback state is deferred until the player reports ready; it
// must not be dropped just because the widget is still initializing.
func (e *Engine) HandleRoomSync(sync domain.RoomSyncPayload) {
	e.mu.Lock()
	if sync.Id != "" {
		e.room.Id = sync.Id
		e.room.Title = sync.Title
		e.room.Content = sync.Content
	}
	e.participants = sync.Participants
	e.isHost = e.deriveIsHost()

	action := domain.ActionPause
	if sync.IsPlaying {
		action = domain.ActionPlay
	}
	initial := domain.PlaybackState{
		Action:      action,
		CurrentTime: sync.PlayTime,
		IsPlaying:   sync.IsPlaying,
		Timestamp:   0,
	}

	if e.player.IsReady() {
		e.applyPlaybackLocked(initial)
		e.pendingInitial = nil
	} else {
		e.pendingInitial = &initial
	}
	e.mu.Unlock()

	e.notify()
}

// HandleParticipants replaces the roster wholesale and re-derives host
// status from the fresh list. No incremental patching, no cached host flag.
func (e *Engine) HandleParticipants(participants []domain.Participant) {
	e.mu.Lock()
	e.participants = participants
	e.isHost = e.deriveIsHost()
	e.mu.Unlock()

	e.notify()
}

// HandleVideoSync applies an authoritative broadcast to the player. Stale
// messages are dropped silently; that is expected under network jitter.
// Accepted state is applied regardless of local host status, so the host
// converges to the broadcast value too.
func (e *Engine) HandleVideoSync(sync domain.PlaybackState) {
	e.mu.Lock()
	if sync.Timestamp != 0 {
		age := e.now().UnixMilli() - sync.Timestamp
		if age >= e.staleness.Milliseconds() {
			e.logger.Debug("dropping stale video sync", "age_ms", age, "action", sync.Action)
			e.mu.Unlock()
			return
		}
	}

	if e.player.IsReady() {
		e.applyPlaybackLocked(sync)
		e.pendingInitial = nil
	} else {
		// keep the freshest accepted state for the ready transition
		e.pendingInitial = &sync
		e.playback = sync
	}
	e.mu.Unlock()

	e.notify()
}

// HandlePlayerReady flushes the buffered initial playback state exactly
// once; a later readiness re-check must not reapply it.
func (e *Engine) HandlePlayerReady() {
	e.mu.Lock()
	pending := e.pendingInitial
	e.pendingInitial = nil
	if pending != nil {
		e.applyPlaybackLocked(*pending)
	}
	e.mu.Unlock()

	if pending != nil {
		e.notify()
	}
}

func (e *Engine) HandleChatMessage(msg domain.ChatMessage) {
	e.mu.Lock()
	e.messages = append(e.messages, msg)
	e.mu.Unlock()

	e.notify()
}

// HandlePlayerEvent turns a genuine local player state change into an
// outbound control message. Sync-driven echoes and non-host events are
// suppressed: only the host's own actions are authoritative.
func (e *Engine) HandlePlayerEvent(ev player.Event) {
	if e.guard.Suppressed() {
		e.logger.Debug("suppressing sync-driven player event", "action", ev.Action)
		return
	}

	e.mu.Lock()
	isHost := e.isHost
	connected := e.state == StateConnected
	e.mu.Unlock()

	if !isHost || !connected {
		return
	}

	if err := e.publisher.SendVideoControl(ev.Action, ev.CurrentTime); err != nil {
		e.logger.Warn("failed to publish player event", "action", ev.Action, "error", err)
	}
}

// RequestControl validates and publishes a host control action. The player
// is deliberately not touched here: the state change must arrive back via
// the video-sync topic, the single source of truth for what happened.
func (e *Engine) RequestControl(action domain.PlayerAction, currentTime float64) error {
	e.mu.Lock()
	isHost := e.isHost
	connected := e.state == StateConnected
	e.mu.Unlock()

	if !isHost {
		e.logger.Info("control rejected: not host", "action", action)
		return ErrPermissionDenied
	}
	if !connected {
		e.logger.Info("control rejected: not connected", "action", action)
		return ErrNotConnected
	}
	if !e.player.IsReady() {
		e.logger.Info("control rejected: player not ready", "action", action)
		return player.ErrNotReady
	}

	currentTime = e.clamp(currentTime)

	if err := e.publisher.SendVideoControl(action, currentTime); err != nil {
		return err
	}

	return nil
}

// Leave marks the session disposed. Channel and player teardown belong to
// the orchestrator.
func (e *Engine) Leave() {
	e.mu.Lock()
	e.state = StateLeft
	e.mu.Unlock()

	e.notify()
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	participants := make([]domain.Participant, len(e.participants))
	copy(participants, e.participants)
	messages := make([]domain.ChatMessage, len(e.messages))
	copy(messages, e.messages)

	return Snapshot{
		State:            e.state,
		Room:             e.room,
		Participants:     participants,
		IsHost:           e.isHost,
		Playback:         e.playback,
		ConnState:        e.connState,
		ReconnectAttempt: e.reconnectAttempt,
		Messages:         messages,
		LastError:        e.lastError,
	}
}

// deriveIsHost scans the freshest roster instead of trusting any cached
// flag. Must be called with the lock held.
func (e *Engine) deriveIsHost() bool {
	for _, p := range e.participants {
		if p.UserId == e.userId {
			return p.IsHost
		}
	}
	return false
}

// applyPlaybackLocked drives the player to the broadcast state under the
// sync guard and updates the local mirror. Must be called with the lock held.
func (e *Engine) applyPlaybackLocked(sync domain.PlaybackState) {
	sync.CurrentTime = e.clamp(sync.CurrentTime)

	e.guard.Apply(func() {
		if err := e.player.SeekTo(sync.CurrentTime); err != nil {
			e.logger.Warn("failed to seek player", "error", err)
		}

		var err error
		if sync.IsPlaying {
			err = e.player.Play()
		} else {
			err = e.player.Pause()
		}
		if err != nil {
			e.logger.Warn("failed to apply playback state", "action", sync.Action, "error", err)
		}
	})

	e.playback = sync
}

// clamp bounds a time to [0, duration], preferring the player's reported
// duration over the catalog's once the widget has loaded.
func (e *Engine) clamp(t float64) float64 {
	if t < 0 {
		return 0
	}

	duration := float64(e.room.Content.Duration)
	if e.player.IsReady() {
		if d, err := e.player.Duration(); err == nil && d > 0 {
			duration = float64(d)
		}
	}

	if duration > 0 && t > duration {
		return duration
	}
	return t
}

func (e *Engine) notify() {
	e.mu.Lock()
	fn := e.onChange
	var snapshot Snapshot
	if fn != nil {
		snapshot = e.snapshotLocked()
	}
	e.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}
