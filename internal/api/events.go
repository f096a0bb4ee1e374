package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const eventsPingInterval = 30 * time.Second

// EventMessage is the frame sent to event feed subscribers
type EventMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// handleEventsWS streams application lifecycle events to the client over
// a websocket. Events arrive via the dispatcher's pub/sub mirror, so a
// subscriber sees every event dispatched after it connected.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	principal := PrincipalFromContext(r.Context())
	slog.Info("event feed connected", "user", principal.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := s.dispatcher.Subscribe(ctx)
	defer pubsub.Close()

	var wg sync.WaitGroup

	// Relay pub/sub messages to the websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		ch := pubsub.Channel()
		ticker := time.NewTicker(eventsPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case msg, ok := <-ch:
				if !ok {
					return
				}
				frame := EventMessage{
					Type: "event",
					Data: json.RawMessage(msg.Payload),
				}
				data, err := json.Marshal(frame)
				if err != nil {
					slog.Error("failed to marshal event frame", "error", err)
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					slog.Debug("failed to send event frame", "error", err)
					return
				}
			}
		}
	}()

	// Drain the client side to detect disconnects
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	wg.Wait()
	slog.Info("event feed disconnected", "user", principal.ID)
}
