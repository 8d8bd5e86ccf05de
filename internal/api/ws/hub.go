package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ymahak/cust/internal/server/middleware"
)

// Subscriber streams payloads published on a channel. *redis.PubSub and *Local
// satisfy it.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub serves live escalation events to reviewer dashboards.
type Hub struct {
	sub     Subscriber
	channel string
	opts    *websocket.AcceptOptions
}

// NewHub creates a hub relaying channel. origins lists the host patterns
// allowed to open a cross-origin socket; nil means same-origin only.
func NewHub(sub Subscriber, channel string, origins []string) *Hub {
	var opts *websocket.AcceptOptions
	if len(origins) > 0 {
		opts = &websocket.AcceptOptions{OriginPatterns: origins}
	}
	return &Hub{sub: sub, channel: channel, opts: opts}
}

// ServeEscalations relays every event on the escalation channel to the client
// until either side goes away.
func (h *Hub) ServeEscalations(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.opts)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// Reviewers only receive; CloseRead handles pings and cancels ctx on close.
	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.sub.Subscribe(ctx, h.channel)
	if err != nil {
		log.Error().Err(err).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	reviewer, _ := middleware.UsernameFromContext(r.Context())
	log.Debug().Str("reviewer", reviewer).Msg("escalation feed connected")

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, ok := <-messages:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}
