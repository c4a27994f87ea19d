package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/stockyhq/stocky/internal/events"
)

// WebsocketHandler pushes the same event feed as the SSE stream over a
// websocket, for clients that prefer a bidirectional transport. Inbound
// messages are read and discarded; the connection is push-only.
type WebsocketHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewWebsocketHandler creates a new websocket handler.
func NewWebsocketHandler(eventBus *events.Bus, log zerolog.Logger) *WebsocketHandler {
	return &WebsocketHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "websocket").Logger(),
	}
}

// ServeHTTP handles GET /api/ws upgrade requests.
func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Same-origin policy is handled by the CORS middleware upstream
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	h.log.Info().Msg("Websocket client connected")

	ctx := r.Context()

	// Buffered so a slow client drops events instead of blocking publishers
	eventChan := make(chan *events.Event, 100)

	eventHandler := func(event *events.Event) {
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Websocket channel full, dropping event")
		}
	}

	for _, eventType := range streamEventTypes {
		h.eventBus.Subscribe(eventType, eventHandler)
	}

	// Drain inbound frames so pings are answered and closes are noticed
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			h.log.Info().Msg("Websocket client disconnected")
			return

		case <-readDone:
			h.log.Info().Msg("Websocket client closed connection")
			return

		case event := <-eventChan:
			if err := h.writeEvent(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("Websocket write failed, closing")
				return
			}
		}
	}
}

// writeEvent marshals and sends one event with a write deadline.
func (h *WebsocketHandler) writeEvent(ctx context.Context, conn *websocket.Conn, event *events.Event) error {
	data, err := json.Marshal(map[string]interface{}{
		"type":      string(event.Type),
		"module":    event.Module,
		"timestamp": event.Timestamp.Format(time.RFC3339),
		"data":      event.Data,
	})
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return conn.Write(writeCtx, websocket.MessageText, data)
}
