// Package devserver is a loopback room server for local development and
// end-to-end testing of the client: REST room management plus the realtime
// room channel, backed by redis.
package devserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/watchlounge/client/internal/domain"
	"github.com/watchlounge/client/pkg/validator"
	"github.com/watchlounge/client/pkg/wsrouter"
)

const roomExpiration = 24 * time.Hour

type Controller struct {
	roomService *service
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	wsmux       *wsrouter.WSRouter
	logger      *slog.Logger
}

func NewController(rc *redis.Client, secret string, logger *slog.Logger) *Controller {
	c := &Controller{
		roomService: newService(NewRepo(rc, roomExpiration), newConnRegistry(), secret, logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.NewValidator(),
		logger:   logger,
	}

	c.wsmux = wsrouter.New(logger)
	c.wsmux.Handle(domain.MsgJoin, c.handleJoin)
	c.wsmux.Handle(domain.MsgLeave, c.handleLeave)
	c.wsmux.Handle(domain.MsgChat, c.handleChat)
	c.wsmux.Handle(domain.MsgVideoControl, c.handleVideoControl)

	return c
}

func (c *Controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/rooms", c.createRoom)
		r.Route("/rooms/{room-id}", func(r chi.Router) {
			r.Post("/join", c.joinRoom)
			r.Get("/", c.getRoom)
			r.Get("/ws", c.ws)
		})
	})

	return r
}
