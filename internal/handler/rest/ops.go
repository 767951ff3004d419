package rest

import (
	"context"
	"net/http"

	"github.com/webitel/code-delivery-service/internal/domain/model"
	"github.com/webitel/code-delivery-service/internal/service"
)

type snapshotter interface {
	Snapshot(ctx context.Context) model.ServerStats
}

type OpsHandler struct {
	identity service.Resolver
	stats    snapshotter
}

func NewOpsHandler(identity service.Resolver, stats snapshotter) *OpsHandler {
	return &OpsHandler{identity: identity, stats: stats}
}

type healthResponse struct {
	Status         string `json:"status"`
	CacheAvailable bool   `json:"cache_available"`
}

// Health is always 200: a shared cache outage degrades resolution, not the process.
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		CacheAvailable: h.identity.IsAvailable(r.Context()),
	})
}

func (h *OpsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Snapshot(r.Context()))
}
