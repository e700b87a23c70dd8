// Package wsrouter routes incoming websocket frames to handlers by message
// type. It is used on both sides of the wire: the devserver serves client
// commands with it and the client channel dispatches server broadcasts.
package wsrouter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error

type WSRouter struct {
	routes map[string]HandlerFunc
	logger *slog.Logger
}

func New(logger *slog.Logger) *WSRouter {
	return &WSRouter{
		routes: make(map[string]HandlerFunc),
		logger: logger,
	}
}

func (r *WSRouter) Handle(messageType string, handler HandlerFunc) {
	r.routes[messageType] = handler
}

// ServeConn reads frames until the connection fails. Malformed frames and
// unknown message types are logged and dropped, never returned as errors.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.WarnContext(ctx, "dropping malformed message", "error", err)
			continue
		}

		handler, exists := r.routes[msg.Type]
		if !exists {
			r.logger.WarnContext(ctx, "dropping message of unknown type", "message_type", msg.Type)
			continue
		}

		if err := handler(ctx, conn, msg.Payload); err != nil {
			r.logger.WarnContext(ctx, "failed to handle message", "message_type", msg.Type, "error", err)
		}
	}
}
