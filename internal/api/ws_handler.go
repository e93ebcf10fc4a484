package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/syncer"
	ws "github.com/vdavid/vchat/internal/websocket"
)

// WebSocketHandler handles the /api/v1/ws endpoint for real-time updates.
type WebSocketHandler struct {
	hub    *ws.Hub
	syncer Syncer
	log    zerolog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(hub *ws.Hub, orch Syncer, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		syncer: orch,
		log:    log.With().Str("component", "api.ws").Logger(),
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The API token already gates the endpoint.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with the Hub.
// The first client to connect triggers a sync so it catches up right away.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("Failed to upgrade connection")
		return
	}

	isFirstConnection := h.hub.ActiveConnections() == 0

	client := h.hub.Register(conn)
	if client == nil {
		return
	}
	h.log.Debug().Int("connections", h.hub.ActiveConnections()).Msg("WebSocket connection established")

	if isFirstConnection {
		err := h.syncer.TriggerNow(context.WithoutCancel(r.Context()))
		if err != nil && !errors.Is(err, syncer.ErrSyncInProgress) {
			h.log.Debug().Err(err).Msg("Catch-up sync not started")
		}
	}

	go h.readLoop(client)
}

// readLoop reads messages from the WebSocket until the connection is closed.
func (h *WebSocketHandler) readLoop(client *ws.Client) {
	conn := client.Conn()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.hub.Unregister(client)
}

// ForwardSyncEvents broadcasts every cycle result until events closes or
// ctx is done. Cycles that changed nothing and failed nothing are skipped.
func (h *WebSocketHandler) ForwardSyncEvents(ctx context.Context, events <-chan syncer.CycleResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-events:
			if !ok {
				return
			}
			if res.Err == nil && len(res.ChangedKeys()) == 0 {
				continue
			}
			if err := h.hub.Broadcast(syncEvent(res)); err != nil {
				h.log.Error().Err(err).Msg("Failed to broadcast sync event")
			}
		}
	}
}

func syncEvent(res syncer.CycleResult) models.SyncEvent {
	event := models.SyncEvent{
		Type:             "sync",
		Finished:         res.Finished,
		ConversationKeys: res.ChangedKeys(),
		Inserted:         res.Reconciled.Inserted,
	}
	if event.ConversationKeys == nil {
		event.ConversationKeys = []string{}
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
	}
	return event
}
