package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/webitel/code-delivery-service/internal/domain/event"
	"github.com/webitel/code-delivery-service/internal/domain/model"
)

const (
	MaxCodeLength   = 256
	MaxSourceLength = 64
	MaxTypeLength   = 64

	DefaultSource = "api"
	DefaultType   = "default"
)

// ErrInvalidRequest marks ingest input rejected before resolution.
var ErrInvalidRequest = errors.New("invalid ingest request")

// Ingester is the single upstream entry point: resolve, then broadcast.
type Ingester interface {
	Ingest(ctx context.Context, req model.IngestRequest) (model.IngestResult, error)
}

type IngestService struct {
	identity    Resolver
	broadcaster Broadcaster
	logger      *slog.Logger
}

func NewIngestService(identity Resolver, broadcaster Broadcaster, logger *slog.Logger) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{identity: identity, broadcaster: broadcaster, logger: logger}
}

// Ingest validates req, resolves the target and broadcasts the code.
// It returns ErrInvalidRequest or model.ErrUserNotFound for rejected input.
func (s *IngestService) Ingest(ctx context.Context, req model.IngestRequest) (model.IngestResult, error) {
	payload, err := validate(req)
	if err != nil {
		return model.IngestResult{}, err
	}

	userID, ok := s.identity.Resolve(ctx, payload.Username)
	if !ok {
		return model.IngestResult{}, fmt.Errorf("ingest for %q: %w", payload.Username, model.ErrUserNotFound)
	}

	delivered := s.broadcaster.BroadcastEvent(ctx, event.NewCodeEventFromPayload(payload))

	s.logger.Info("CODE_INGESTED",
		slog.String("username", payload.Username),
		slog.Int64("user_id", userID),
		slog.String("source", payload.Source),
		slog.String("type", payload.Type),
		slog.Int("delivered", delivered))

	return model.IngestResult{Status: "ok", Delivered: delivered, UserID: userID}, nil
}

func validate(req model.IngestRequest) (*model.CodePayload, error) {
	name, ok := model.NormalizeUsername(req.Username)
	if !ok {
		return nil, fmt.Errorf("%w: username is required and at most %d characters", ErrInvalidRequest, model.MaxUsernameLength)
	}

	code := strings.TrimSpace(req.Code)
	switch {
	case code == "":
		return nil, fmt.Errorf("%w: code is required", ErrInvalidRequest)
	case utf8.RuneCountInString(code) > MaxCodeLength:
		return nil, fmt.Errorf("%w: code exceeds %d characters", ErrInvalidRequest, MaxCodeLength)
	}

	source := defaultIfEmpty(req.Source, DefaultSource)
	if utf8.RuneCountInString(source) > MaxSourceLength {
		return nil, fmt.Errorf("%w: source exceeds %d characters", ErrInvalidRequest, MaxSourceLength)
	}
	typ := defaultIfEmpty(req.Type, DefaultType)
	if utf8.RuneCountInString(typ) > MaxTypeLength {
		return nil, fmt.Errorf("%w: type exceeds %d characters", ErrInvalidRequest, MaxTypeLength)
	}

	return &model.CodePayload{
		Username: name,
		Code:     code,
		Source:   source,
		Type:     typ,
		Metadata: req.Metadata,
	}, nil
}

func defaultIfEmpty(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
