package engine

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchlounge/client/internal/channel"
	"github.com/watchlounge/client/internal/domain"
	"github.com/watchlounge/client/internal/player"
)

type publishedControl struct {
	action      domain.PlayerAction
	currentTime float64
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []publishedControl
	err  error
}

func (p *fakePublisher) SendVideoControl(action domain.PlayerAction, currentTime float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, publishedControl{action: action, currentTime: currentTime})
	return nil
}

func (p *fakePublisher) published() []publishedControl {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedControl(nil), p.sent...)
}

type fakePlayer struct {
	mu       sync.Mutex
	ready    bool
	duration int
	seeks    []float64
	plays    int
	pauses   int
}

func (p *fakePlayer) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	return nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses++
	return nil
}

func (p *fakePlayer) SeekTo(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeks = append(p.seeks, seconds)
	return nil
}

func (p *fakePlayer) Duration() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration, nil
}

func (p *fakePlayer) setReady(ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = ready
}

func (p *fakePlayer) seekCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seeks)
}

type fakeGuard struct {
	mu         sync.Mutex
	suppressed bool
	applied    int
}

func (g *fakeGuard) Apply(fn func()) {
	g.mu.Lock()
	g.applied++
	g.mu.Unlock()
	fn()
}

func (g *fakeGuard) Suppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed
}

func newTestEngine(t *testing.T, userId string) (*Engine, *fakePublisher, *fakePlayer, *fakeGuard) {
	t.Helper()

	pub := &fakePublisher{}
	pc := &fakePlayer{ready: true, duration: 300}
	guard := &fakeGuard{}
	e := New(pub, pc, guard, &Config{
		UserId: userId,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return e, pub, pc, guard
}

func roster(hostId string, memberIds ...string) []domain.Participant {
	participants := []domain.Participant{{UserId: hostId, UserName: "host", IsHost: true, IsOnline: true}}
	for _, id := range memberIds {
		participants = append(participants, domain.Participant{UserId: id, UserName: "member", IsOnline: true})
	}
	return participants
}

func connect(e *Engine) {
	e.HandleConnStatus(channel.Status{State: domain.ConnStateConnected})
}

func TestVideoSyncStalenessRejection(t *testing.T) {
	e, _, pc, _ := newTestEngine(t, "u1")
	connect(e)

	now := time.Now()

	// older than the threshold: dropped without touching the player
	e.HandleVideoSync(domain.PlaybackState{
		Action:      domain.ActionPlay,
		CurrentTime: 42,
		IsPlaying:   true,
		Timestamp:   now.Add(-11 * time.Second).UnixMilli(),
	})
	assert.Equal(t, 0, pc.seekCount())
	assert.False(t, e.Snapshot().Playback.IsPlaying)

	// fresh: applied
	e.HandleVideoSync(domain.PlaybackState{
		Action:      domain.ActionPlay,
		CurrentTime: 42,
		IsPlaying:   true,
		Timestamp:   now.UnixMilli(),
	})
	assert.Equal(t, 1, pc.seekCount())
	assert.True(t, e.Snapshot().Playback.IsPlaying)

	// timestamp 0 marks an authoritative replay and bypasses the age check
	e.HandleVideoSync(domain.PlaybackState{
		Action:      domain.ActionPause,
		CurrentTime: 50,
		IsPlaying:   false,
		Timestamp:   0,
	})
	assert.Equal(t, 2, pc.seekCount())
	assert.False(t, e.Snapshot().Playback.IsPlaying)
}

func TestVideoSyncAppliedUnderGuard(t *testing.T) {
	e, _, pc, guard := newTestEngine(t, "u1")
	connect(e)

	e.HandleVideoSync(domain.PlaybackState{
		Action:      domain.ActionPlay,
		CurrentTime: 10,
		IsPlaying:   true,
		Timestamp:   time.Now().UnixMilli(),
	})

	assert.Equal(t, 1, guard.applied, "player mutation must run under the sync guard")
	assert.Equal(t, []float64{10}, pc.seeks)
	assert.Equal(t, 1, pc.plays)
}

func TestVideoSyncClampsToPlayerDuration(t *testing.T) {
	e, _, pc, _ := newTestEngine(t, "u1")
	connect(e)

	e.HandleVideoSync(domain.PlaybackState{
		Action:      domain.ActionSeek,
		CurrentTime: 5000,
		IsPlaying:   false,
		Timestamp:   time.Now().UnixMilli(),
	})
	assert.Equal(t, []float64{300}, pc.seeks)

	e.HandleVideoSync(domain.PlaybackState{
		Action:      domain.ActionSeek,
		CurrentTime: -7,
		IsPlaying:   false,
		Timestamp:   time.Now().UnixMilli(),
	})
	assert.Equal(t, []float64{300, 0}, pc.seeks)
}

func TestRosterReplacementDerivesHost(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "u1")

	e.HandleParticipants(roster("u1", "u2"))
	assert.True(t, e.Snapshot().IsHost)

	// host migrated: the derived flag must follow the fresh roster
	e.HandleParticipants(roster("u2", "u1"))
	snapshot := e.Snapshot()
	assert.False(t, snapshot.IsHost)
	assert.Len(t, snapshot.Participants, 2)

	// absent from the roster entirely
	e.HandleParticipants(roster("u2"))
	assert.False(t, e.Snapshot().IsHost)
}

func TestRoomSyncBuffersInitialStateUntilPlayerReady(t *testing.T) {
	e, _, pc, _ := newTestEngine(t, "u1")
	pc.setReady(false)

	e.HandleRoomSync(domain.RoomSyncPayload{
		Id:           "r1",
		Title:        "movie night",
		Content:      domain.Content{Id: "c1", VideoId: "dQw4w9WgXcQ", Duration: 300},
		Participants: roster("u1"),
		PlayTime:     120,
		IsPlaying:    true,
	})

	assert.Equal(t, 0, pc.seekCount(), "initial state must wait for the player")
	assert.True(t, e.Snapshot().IsHost)
	assert.Equal(t, "r1", e.Snapshot().Room.Id)

	pc.setReady(true)
	e.HandlePlayerReady()

	require.Equal(t, []float64{120}, pc.seeks)
	assert.Equal(t, 1, pc.plays)

	// the buffer is consumed exactly once
	e.HandlePlayerReady()
	assert.Equal(t, 1, pc.seekCount())
	assert.Equal(t, 1, pc.plays)
}

func TestRoomSyncAppliesImmediatelyWhenPlayerReady(t *testing.T) {
	e, _, pc, _ := newTestEngine(t, "u1")

	e.HandleRoomSync(domain.RoomSyncPayload{
		Id:        "r1",
		Content:   domain.Content{Duration: 300},
		PlayTime:  60,
		IsPlaying: false,
	})

	assert.Equal(t, []float64{60}, pc.seeks)
	assert.Equal(t, 1, pc.pauses)
}

func TestLateVideoSyncOverridesBufferedInitialState(t *testing.T) {
	e, _, pc, _ := newTestEngine(t, "u1")
	pc.setReady(false)

	e.HandleRoomSync(domain.RoomSyncPayload{
		Id:        "r1",
		Content:   domain.Content{Duration: 300},
		PlayTime:  60,
		IsPlaying: false,
	})

	e.HandleVideoSync(domain.PlaybackState{
		Action:      domain.ActionPlay,
		CurrentTime: 90,
		IsPlaying:   true,
		Timestamp:   time.Now().UnixMilli(),
	})

	pc.setReady(true)
	e.HandlePlayerReady()

	// only the freshest state reaches the player
	assert.Equal(t, []float64{90}, pc.seeks)
	assert.Equal(t, 1, pc.plays)
	assert.Equal(t, 0, pc.pauses)
}

func TestRequestControlAuthority(t *testing.T) {
	e, pub, pc, _ := newTestEngine(t, "u1")

	// not host yet
	e.HandleParticipants(roster("u2", "u1"))
	connect(e)
	assert.ErrorIs(t, e.RequestControl(domain.ActionPlay, 10), ErrPermissionDenied)

	// host but the channel is down
	e.HandleParticipants(roster("u1", "u2"))
	e.HandleConnStatus(channel.Status{State: domain.ConnStateDisconnected})
	assert.ErrorIs(t, e.RequestControl(domain.ActionPlay, 10), ErrNotConnected)

	// host and connected but the widget is still initializing
	connect(e)
	pc.setReady(false)
	assert.ErrorIs(t, e.RequestControl(domain.ActionPlay, 10), player.ErrNotReady)

	assert.Empty(t, pub.published())

	pc.setReady(true)
	require.NoError(t, e.RequestControl(domain.ActionPlay, 10))
	require.Len(t, pub.published(), 1)
	assert.Equal(t, publishedControl{action: domain.ActionPlay, currentTime: 10}, pub.published()[0])
}

func TestRequestControlClampsAndNeverTouchesPlayer(t *testing.T) {
	e, pub, pc, _ := newTestEngine(t, "u1")
	e.HandleParticipants(roster("u1"))
	connect(e)

	require.NoError(t, e.RequestControl(domain.ActionSeek, 5000))
	require.NoError(t, e.RequestControl(domain.ActionSeek, -3))

	sent := pub.published()
	require.Len(t, sent, 2)
	assert.Equal(t, 300.0, sent[0].currentTime)
	assert.Equal(t, 0.0, sent[1].currentTime)

	// the local player only moves when the broadcast comes back
	assert.Equal(t, 0, pc.seekCount())
	assert.Equal(t, 0, pc.plays)
}

func TestRequestControlPropagatesPublishError(t *testing.T) {
	e, pub, _, _ := newTestEngine(t, "u1")
	e.HandleParticipants(roster("u1"))
	connect(e)

	pub.err = errors.New("write failed")
	assert.Error(t, e.RequestControl(domain.ActionPause, 10))
}

func TestPlayerEventSuppressedByGuard(t *testing.T) {
	e, pub, _, guard := newTestEngine(t, "u1")
	e.HandleParticipants(roster("u1"))
	connect(e)

	guard.suppressed = true
	e.HandlePlayerEvent(player.Event{Action: domain.ActionPlay, IsPlaying: true, CurrentTime: 10})
	assert.Empty(t, pub.published(), "sync echo must not be re-broadcast")

	guard.suppressed = false
	e.HandlePlayerEvent(player.Event{Action: domain.ActionPlay, IsPlaying: true, CurrentTime: 10})
	assert.Len(t, pub.published(), 1)
}

func TestPlayerEventIgnoredForNonHost(t *testing.T) {
	e, pub, _, _ := newTestEngine(t, "u1")
	e.HandleParticipants(roster("u2", "u1"))
	connect(e)

	e.HandlePlayerEvent(player.Event{Action: domain.ActionPause, IsPlaying: false, CurrentTime: 10})
	assert.Empty(t, pub.published())
}

func TestConnStatusTransitions(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "u1")
	e.SetRoom(domain.Room{Id: "r1"})
	assert.Equal(t, StateAwaitingConnection, e.Snapshot().State)

	connect(e)
	assert.Equal(t, StateConnected, e.Snapshot().State)

	e.HandleConnStatus(channel.Status{State: domain.ConnStateConnecting, ReconnectAttempt: 2})
	snapshot := e.Snapshot()
	assert.Equal(t, StateReconnecting, snapshot.State)
	assert.Equal(t, 2, snapshot.ReconnectAttempt)

	e.HandleConnStatus(channel.Status{State: domain.ConnStateError, ReconnectAttempt: 3, Cause: "reconnect attempts exhausted"})
	snapshot = e.Snapshot()
	assert.Equal(t, StateError, snapshot.State)
	assert.Equal(t, "reconnect attempts exhausted", snapshot.LastError)
}

func TestLeaveIsTerminal(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "u1")
	connect(e)
	e.Leave()
	assert.Equal(t, StateLeft, e.Snapshot().State)

	// a trailing disconnect status must not resurrect the session
	e.HandleConnStatus(channel.Status{State: domain.ConnStateDisconnected})
	assert.Equal(t, StateLeft, e.Snapshot().State)
}

func TestChatMessagesAccumulate(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "u1")

	var notified int
	e.OnChange(func(Snapshot) { notified++ })

	e.HandleChatMessage(domain.ChatMessage{Id: "m1", SenderId: "u2", Content: "hi"})
	e.HandleChatMessage(domain.ChatMessage{Id: "m2", SenderId: "u1", Content: "hello"})

	snapshot := e.Snapshot()
	require.Len(t, snapshot.Messages, 2)
	assert.Equal(t, "hi", snapshot.Messages[0].Content)
	assert.Equal(t, 2, notified)
}
