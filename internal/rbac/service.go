package rbac

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// AuditSink receives a record for every grant and catalog mutation.
type AuditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder counts grant operations by kind, operation and outcome.
type Recorder interface {
	GrantOp(kind, op, outcome string)
}

// ServiceOptions groups the optional collaborators of Service.
type ServiceOptions struct {
	Audit   AuditSink
	Metrics Recorder
	Logger  *slog.Logger
	Now     func() time.Time
}

// Service orchestrates RBAC operations: the role/permission catalog, the grant
// lifecycle and permission resolution.
type Service struct {
	repo    Repository
	users   UserDirectory
	audit   AuditSink
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs a Service backed by the provided repository and user directory.
func NewService(repo Repository, users UserDirectory, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:    repo,
		users:   users,
		audit:   opts.Audit,
		metrics: opts.Metrics,
		logger:  logger,
		now:     func() time.Time { return now().UTC() },
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("rbac audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) count(kind GrantKind, op, outcome string) {
	if s.metrics != nil {
		s.metrics.GrantOp(string(kind), op, outcome)
	}
}
