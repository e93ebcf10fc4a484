package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/syncer"
)

// Syncer is the part of the orchestrator the handlers use.
type Syncer interface {
	TriggerNow(ctx context.Context) error
	Status() syncer.Status
}

// SyncClock reports the last committed sync time.
type SyncClock interface {
	LastSyncTime() time.Time
}

// SyncHandler exposes manual sync triggers and sync status.
type SyncHandler struct {
	syncer Syncer
	clock  SyncClock
	log    zerolog.Logger
}

// NewSyncHandler creates a new SyncHandler instance.
func NewSyncHandler(orch Syncer, clock SyncClock, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		syncer: orch,
		clock:  clock,
		log:    log.With().Str("component", "api.sync").Logger(),
	}
}

// Trigger starts a manual sync cycle and returns without waiting for it.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	err := h.syncer.TriggerNow(r.Context())
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		http.Error(w, "sync already in progress", http.StatusConflict)
	case errors.Is(err, syncer.ErrNotAuthenticated):
		http.Error(w, "not logged in", http.StatusUnauthorized)
	case errors.Is(err, syncer.ErrStopping):
		http.Error(w, "sync is shutting down", http.StatusServiceUnavailable)
	case err != nil:
		h.log.Error().Err(err).Msg("Failed to trigger sync")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

// GetStatus reports the orchestrator state.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	s := h.syncer.Status()
	WriteJSONResponse(w, models.SyncStatusResponse{
		Running:      s.Running,
		Failures:     s.Failures,
		LastSyncTime: timePtr(h.clock.LastSyncTime()),
		LastSuccess:  timePtr(s.LastSuccess),
		LastAttempt:  timePtr(s.LastAttempt),
		LastError:    s.LastError,
	})
}
