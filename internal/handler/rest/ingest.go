package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/webitel/code-delivery-service/internal/domain/model"
	"github.com/webitel/code-delivery-service/internal/service"
)

const maxIngestBody = 64 << 10

type IngestHandler struct {
	logger   *slog.Logger
	ingester service.Ingester
}

func NewIngestHandler(logger *slog.Logger, ingester service.Ingester) *IngestHandler {
	return &IngestHandler{logger: logger, ingester: ingester}
}

// Post accepts a JSON body.
func (h *IngestHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req model.IngestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.ingest(w, r, req)
}

// Get accepts the same fields as query parameters. Metadata is not supported here.
func (h *IngestHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.ingest(w, r, model.IngestRequest{
		Username: q.Get("username"),
		Code:     q.Get("code"),
		Source:   q.Get("source"),
		Type:     q.Get("type"),
	})
}

func (h *IngestHandler) ingest(w http.ResponseWriter, r *http.Request, req model.IngestRequest) {
	res, err := h.ingester.Ingest(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrInvalidRequest.Error()+": "))
	case errors.Is(err, model.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	default:
		h.logger.Error("INGEST_FAILED", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
