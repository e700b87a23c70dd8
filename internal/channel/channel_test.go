package channel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchlounge/client/internal/auth"
	"github.com/watchlounge/client/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wsTestServer accepts room connections and records every inbound frame.
type wsTestServer struct {
	t        *testing.T
	upgrader websocket.Upgrader
	received chan domain.Message

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newWSTestServer(t *testing.T) (*wsTestServer, *httptest.Server) {
	t.Helper()

	s := &wsTestServer{t: t, received: make(chan domain.Message, 32)}
	ts := httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(ts.Close)

	return s, ts
}

func (s *wsTestServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		s.received <- msg
	}
}

func (s *wsTestServer) send(t *testing.T, messageType string, payload any) {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.conns, "no client connected")

	conn := s.conns[len(s.conns)-1]
	require.NoError(t, conn.WriteJSON(map[string]any{"type": messageType, "payload": payload}))
}

func (s *wsTestServer) sendRaw(t *testing.T, data string) {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.conns, "no client connected")

	conn := s.conns[len(s.conns)-1]
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (s *wsTestServer) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

func (s *wsTestServer) expect(t *testing.T, messageType string) domain.Message {
	t.Helper()

	select {
	case msg := <-s.received:
		require.Equal(t, messageType, msg.Type)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received %s", messageType)
		return domain.Message{}
	}
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

type capturedHandlers struct {
	chat         chan domain.ChatMessage
	participants chan []domain.Participant
	videoSync    chan domain.PlaybackState
	roomSync     chan domain.RoomSyncPayload
	statuses     chan Status
}

func newCapturedHandlers() (*capturedHandlers, Handlers) {
	c := &capturedHandlers{
		chat:         make(chan domain.ChatMessage, 8),
		participants: make(chan []domain.Participant, 8),
		videoSync:    make(chan domain.PlaybackState, 8),
		roomSync:     make(chan domain.RoomSyncPayload, 8),
		statuses:     make(chan Status, 32),
	}

	return c, Handlers{
		OnChatMessage:  func(msg domain.ChatMessage) { c.chat <- msg },
		OnParticipants: func(list []domain.Participant) { c.participants <- list },
		OnVideoSync:    func(sync domain.PlaybackState) { c.videoSync <- sync },
		OnRoomSync:     func(sync domain.RoomSyncPayload) { c.roomSync <- sync },
		OnStatusChange: func(status Status) { c.statuses <- status },
	}
}

func newTestChannel(ts *httptest.Server, handlers Handlers) *Channel {
	return New(&Config{
		URL:                  wsURL(ts),
		RoomId:               "r1",
		UserId:               "u1",
		Tokens:               auth.NewStaticProvider("test-token"),
		MaxReconnectAttempts: 3,
		ReconnectBaseDelay:   5 * time.Millisecond,
		Logger:               testLogger(),
	}, handlers)
}

func TestChannelConnectAnnouncesJoin(t *testing.T) {
	server, ts := newWSTestServer(t)
	_, handlers := newCapturedHandlers()
	c := newTestChannel(ts, handlers)

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	msg := server.expect(t, domain.MsgJoin)
	var join domain.JoinPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &join))
	assert.Equal(t, "u1", join.UserId)
	assert.Equal(t, "r1", join.RoomId)
}

func TestChannelRoutesInboundTopics(t *testing.T) {
	server, ts := newWSTestServer(t)
	captured, handlers := newCapturedHandlers()
	c := newTestChannel(ts, handlers)

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	server.expect(t, domain.MsgJoin)

	server.send(t, domain.MsgRoomSync, domain.RoomSyncPayload{Id: "r1", Title: "movie night", PlayTime: 12, IsPlaying: true})
	select {
	case sync := <-captured.roomSync:
		assert.Equal(t, "r1", sync.Id)
		assert.Equal(t, 12.0, sync.PlayTime)
		assert.True(t, sync.IsPlaying)
	case <-time.After(2 * time.Second):
		t.Fatal("room sync never delivered")
	}

	server.send(t, domain.MsgVideoSync, domain.PlaybackState{Action: domain.ActionPlay, CurrentTime: 30, IsPlaying: true, Timestamp: 123})
	select {
	case sync := <-captured.videoSync:
		assert.Equal(t, domain.ActionPlay, sync.Action)
		assert.Equal(t, int64(123), sync.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("video sync never delivered")
	}

	server.send(t, domain.MsgParticipantsUpdated, domain.ParticipantsUpdatedPayload{
		Participants: []domain.Participant{{UserId: "u1", IsHost: true}},
	})
	select {
	case list := <-captured.participants:
		require.Len(t, list, 1)
		assert.True(t, list[0].IsHost)
	case <-time.After(2 * time.Second):
		t.Fatal("participants never delivered")
	}

	server.send(t, domain.MsgChatMessage, domain.ChatMessage{Id: "m1", SenderId: "u2", Content: "hi"})
	select {
	case msg := <-captured.chat:
		assert.Equal(t, "hi", msg.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("chat message never delivered")
	}
}

func TestChannelDropsMalformedFrames(t *testing.T) {
	server, ts := newWSTestServer(t)
	captured, handlers := newCapturedHandlers()
	c := newTestChannel(ts, handlers)

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	server.expect(t, domain.MsgJoin)

	server.sendRaw(t, "{not json")
	server.sendRaw(t, `{"type":"NO_SUCH_TOPIC","payload":{}}`)
	server.send(t, domain.MsgChatMessage, domain.ChatMessage{Id: "m1", Content: "still alive"})

	select {
	case msg := <-captured.chat:
		assert.Equal(t, "still alive", msg.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not survive malformed frames")
	}
}

func TestChannelConnectFailsFastWithoutCredential(t *testing.T) {
	_, ts := newWSTestServer(t)
	captured, handlers := newCapturedHandlers()

	c := New(&Config{
		URL:    wsURL(ts),
		RoomId: "r1",
		UserId: "u1",
		Tokens: auth.NewStaticProvider(""),
		Logger: testLogger(),
	}, handlers)

	require.Error(t, c.Connect(context.Background()))

	select {
	case status := <-captured.statuses:
		assert.Equal(t, domain.ConnStateError, status.State)
		assert.Equal(t, "no credential", status.Cause)
	case <-time.After(time.Second):
		t.Fatal("no status reported")
	}
}

func TestChannelPublishRejectedWhenNotConnected(t *testing.T) {
	_, ts := newWSTestServer(t)
	_, handlers := newCapturedHandlers()
	c := newTestChannel(ts, handlers)

	assert.ErrorIs(t, c.SendChatMessage("hi"), ErrNotConnected)
	assert.ErrorIs(t, c.SendVideoControl(domain.ActionPlay, 10), ErrNotConnected)
}

func TestChannelReconnectsAfterConnectionLoss(t *testing.T) {
	server, ts := newWSTestServer(t)
	_, handlers := newCapturedHandlers()
	c := newTestChannel(ts, handlers)

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	server.expect(t, domain.MsgJoin)

	// drop the server side of the connection; the client must come back and
	// re-announce itself
	server.closeClients()
	server.expect(t, domain.MsgJoin)

	require.Eventually(t, func() bool {
		return c.Status().State == domain.ConnStateConnected
	}, 2*time.Second, 5*time.Millisecond)
}

func TestChannelGivesUpAfterBoundedReconnects(t *testing.T) {
	server, ts := newWSTestServer(t)
	captured, handlers := newCapturedHandlers()
	c := newTestChannel(ts, handlers)

	require.NoError(t, c.Connect(context.Background()))
	server.expect(t, domain.MsgJoin)

	// take the whole server down so every reconnect attempt fails
	ts.CloseClientConnections()
	ts.Close()

	var final Status
	require.Eventually(t, func() bool {
		for {
			select {
			case status := <-captured.statuses:
				final = status
				if status.State == domain.ConnStateError {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 10*time.Millisecond, "terminal error status never reported")

	assert.Equal(t, domain.ConnStateError, final.State)
	assert.Equal(t, 3, final.ReconnectAttempt)
	assert.Equal(t, "reconnect attempts exhausted", final.Cause)
}

func TestChannelDisconnectIsIdempotent(t *testing.T) {
	server, ts := newWSTestServer(t)
	_, handlers := newCapturedHandlers()
	c := newTestChannel(ts, handlers)

	require.NoError(t, c.Connect(context.Background()))
	server.expect(t, domain.MsgJoin)

	c.Disconnect()
	c.Disconnect()

	msg := server.expect(t, domain.MsgLeave)
	var leave domain.LeavePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &leave))
	assert.Equal(t, "u1", leave.UserId)

	assert.Equal(t, domain.ConnStateDisconnected, c.Status().State)
}
