// Package catalog is the REST collaborator the watch-party core consults
// before any realtime connection exists: room and content lookup only.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/watchlounge/client/internal/auth"
	"github.com/watchlounge/client/internal/domain"
)

var ErrRoomNotFound = errors.New("room not found")

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenProvider
	logger     *slog.Logger
}

func NewClient(baseURL string, tokens auth.TokenProvider, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tokens:     tokens,
		logger:     logger,
	}
}

func (c *Client) GetRoom(ctx context.Context, roomId string) (domain.Room, error) {
	token, err := c.tokens.ValidToken()
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to get credential: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/rooms/"+roomId, nil)
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to get room: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.Room{}, ErrRoomNotFound
	default:
		return domain.Room{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var envelope struct {
		Data domain.Room `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return domain.Room{}, fmt.Errorf("failed to decode room: %w", err)
	}

	c.logger.DebugContext(ctx, "room fetched", "room_id", envelope.Data.Id, "content_id", envelope.Data.Content.Id)

	return envelope.Data, nil
}
