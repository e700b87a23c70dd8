package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/watchlounge/client/internal/domain"
	"github.com/watchlounge/client/pkg/ctxlogger"
	"github.com/watchlounge/client/pkg/rest"
)

type ctxKey string

const (
	roomIdCtxKey ctxKey = "room_id"
	userIdCtxKey ctxKey = "user_id"
)

type output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type createRoomInput struct {
	Title      string `json:"title" validate:"required,max=64"`
	VideoURL   string `json:"video_url" validate:"required,url"`
	UserName   string `json:"user_name" validate:"required,max=16"`
	UserAvatar string `json:"user_avatar" validate:"omitempty,max=256"`
}

func (c *Controller) createRoom(w http.ResponseWriter, r *http.Request) {
	var input createRoomInput
	if err := rest.ReadJSON(r, &input); err != nil {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	resp, err := c.roomService.CreateRoom(r.Context(), &CreateRoomParams{
		Title:      input.Title,
		VideoURL:   input.VideoURL,
		UserName:   input.UserName,
		UserAvatar: input.UserAvatar,
	})
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to create room", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "failed to create room"})
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": resp})
}

type joinRoomInput struct {
	UserName   string `json:"user_name" validate:"required,max=16"`
	UserAvatar string `json:"user_avatar" validate:"omitempty,max=256"`
}

func (c *Controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	var input joinRoomInput
	if err := rest.ReadJSON(r, &input); err != nil {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	resp, err := c.roomService.JoinRoom(r.Context(), &JoinRoomParams{
		RoomId:     roomId,
		UserName:   input.UserName,
		UserAvatar: input.UserAvatar,
	})
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "room not found"})
			return
		}
		c.logger.ErrorContext(r.Context(), "failed to join room", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "failed to join room"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": resp})
}

func (c *Controller) getRoom(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	room, err := c.roomService.GetRoom(r.Context(), roomId)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "room not found"})
			return
		}
		c.logger.ErrorContext(r.Context(), "failed to get room", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "failed to get room"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": room})
}

// ws authenticates the bearer token from the query string, upgrades the
// connection and serves it until it drops. The freshly joined member gets the
// private room snapshot first, then everyone gets the updated roster.
func (c *Controller) ws(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	claims, err := c.parseTokenParam(r)
	if err != nil || claims.RoomId != roomId {
		rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": "invalid token"})
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	ctx := context.WithValue(r.Context(), roomIdCtxKey, roomId)
	ctx = context.WithValue(ctx, userIdCtxKey, claims.UserId)
	ctx = ctxlogger.AppendCtx(ctx, slog.String("room_id", roomId))
	ctx = ctxlogger.AppendCtx(ctx, slog.String("user_id", claims.UserId))

	resp, err := c.roomService.ConnectMember(ctx, conn, roomId, claims.UserId)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to connect member", "error", err)
		conn.Close()
		return
	}

	if err := c.writeToUser(claims.UserId, domain.MsgRoomSync, resp.RoomSync); err != nil {
		c.logger.WarnContext(ctx, "failed to write room sync", "error", err)
	}
	c.broadcastParticipants(ctx, roomId, resp.Participants)

	c.logger.InfoContext(ctx, "member connected")

	c.serveConn(ctx, conn, roomId, claims.UserId)
}

func (c *Controller) serveConn(ctx context.Context, conn *websocket.Conn, roomId, userId string) {
	defer func() {
		conn.Close()

		participants, err := c.roomService.DisconnectMember(ctx, roomId, userId)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to disconnect member", "error", err)
			return
		}
		if participants != nil {
			c.broadcastParticipants(ctx, roomId, participants)
		}

		c.logger.InfoContext(ctx, "member disconnected")
	}()

	c.wsmux.ServeConn(ctx, conn)
}

func (c *Controller) parseTokenParam(r *http.Request) (tokenClaims, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return tokenClaims{}, ErrInvalidToken
	}

	return c.roomService.parseToken(token)
}

// handleJoin acknowledges the client's join announcement by re-broadcasting
// the roster. Membership itself was already established on connect, so a
// repeated announcement is harmless.
func (c *Controller) handleJoin(ctx context.Context, _ *websocket.Conn, _ json.RawMessage) error {
	roomId := ctx.Value(roomIdCtxKey).(string)

	participants, err := c.roomService.roomRepo.GetMembers(ctx, roomId)
	if err != nil {
		return fmt.Errorf("failed to get members: %w", err)
	}

	c.broadcastParticipants(ctx, roomId, participants)

	return nil
}

func (c *Controller) handleLeave(ctx context.Context, conn *websocket.Conn, _ json.RawMessage) error {
	// closing the connection drives the disconnect path in serveConn
	return conn.Close()
}

func (c *Controller) handleChat(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	roomId := ctx.Value(roomIdCtxKey).(string)
	userId := ctx.Value(userIdCtxKey).(string)

	var input domain.ChatPayload
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("failed to unmarshal chat payload: %w", err)
	}

	msg, err := c.roomService.SendChat(ctx, roomId, userId, input.Content)
	if err != nil {
		return fmt.Errorf("failed to send chat: %w", err)
	}

	c.broadcast(ctx, roomId, domain.MsgChatMessage, msg)

	return nil
}

// handleVideoControl applies a host control command and fans the stamped
// result out to the whole room, the sender included.
func (c *Controller) handleVideoControl(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	roomId := ctx.Value(roomIdCtxKey).(string)
	userId := ctx.Value(userIdCtxKey).(string)

	var input domain.VideoControlPayload
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("failed to unmarshal video control payload: %w", err)
	}

	state, err := c.roomService.UpdatePlayerState(ctx, roomId, userId, input.Action, input.CurrentTime)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			c.logger.InfoContext(ctx, "dropping video control from non-host", "action", input.Action)
			return nil
		}
		return fmt.Errorf("failed to update player state: %w", err)
	}

	c.broadcast(ctx, roomId, domain.MsgVideoSync, state)

	return nil
}

func (c *Controller) broadcastParticipants(ctx context.Context, roomId string, participants []domain.Participant) {
	c.broadcast(ctx, roomId, domain.MsgParticipantsUpdated, domain.ParticipantsUpdatedPayload{Participants: participants})
}

func (c *Controller) broadcast(ctx context.Context, roomId, messageType string, payload any) {
	for _, entry := range c.roomService.conns.RoomEntries(roomId) {
		if err := entry.WriteJSON(&output{Type: messageType, Payload: payload}); err != nil {
			c.logger.WarnContext(ctx, "failed to write to conn", "message_type", messageType, "error", err)
		}
	}
}

func (c *Controller) writeToUser(userId, messageType string, payload any) error {
	entry, err := c.roomService.conns.EntryByUser(userId)
	if err != nil {
		return err
	}

	return entry.WriteJSON(&output{Type: messageType, Payload: payload})
}
