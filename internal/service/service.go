package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"apotekin/backend/internal/cache"
	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/store"
)

// maxCommitAttempts bounds the atomic unit of a sale or reversal: the first
// try plus one retry with fresh reads.
const maxCommitAttempts = 2

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Settings struct {
	SalesLookbackDays int
	ExpiringSoonDays  int
}

type Service struct {
	repo      store.Repository
	receipts  cache.ReceiptCache
	validator *Validator
	customers *CustomerResolver
	logger    *slog.Logger
	settings  Settings
	now       func() time.Time
}

func New(repo store.Repository, receipts cache.ReceiptCache, logger *slog.Logger, settings Settings) *Service {
	if receipts == nil {
		receipts = cache.NoopReceiptCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if settings.SalesLookbackDays < 1 {
		settings.SalesLookbackDays = 30
	}
	if settings.ExpiringSoonDays < 1 {
		settings.ExpiringSoonDays = 90
	}
	now := func() time.Time { return time.Now().UTC() }

	return &Service{
		repo:      repo,
		receipts:  receipts,
		validator: NewValidator(repo, now),
		customers: NewCustomerResolver(repo, now),
		logger:    logger.With("component", "service"),
		settings:  settings,
		now:       now,
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	// Audit writes are best-effort and must outlive a request that was
	// cancelled right after its commit.
	ctx = context.WithoutCancel(ctx)
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            uuid.New(),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("failed to write audit log", "action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}
