package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-iam/internal/jobs"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRecord persists an audit entry produced by an RBAC mutation.
	TaskAuditRecord = "audit:record"
	// TaskSessionSweep closes login sessions past their expiry.
	TaskSessionSweep = "sessions:sweep"
)

// NewAuditRecordTask constructs an Asynq task carrying the audit entry.
func NewAuditRecordTask(entry shared.AuditLog) (*asynq.Task, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data, asynq.MaxRetry(10)), nil
}

// NewSessionSweepTask constructs the periodic sweep task.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSessionSweep, nil)
}

// AuditStore persists audit entries. shared.AuditLogger satisfies it.
type AuditStore interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// AuditRecordJob drains audit:record tasks into the audit store.
type AuditRecordJob struct {
	Store   AuditStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskAuditRecord tasks.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("audit record: handler not configured")
	}
	var entry shared.AuditLog
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return asynq.SkipRetry
	}
	if err := entry.Validate(); err != nil {
		j.logger().Warn("drop invalid audit entry", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskAuditRecord)
	err := j.Store.Record(ctx, entry)
	if err != nil {
		j.logger().Error("record audit entry",
			slog.String("action", entry.Action),
			slog.String("entity", entry.Entity),
			slog.String("entity_id", entry.EntityID),
			slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *AuditRecordJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// SessionSweeper closes expired login sessions.
type SessionSweeper interface {
	EndExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionSweepJob marks expired user_sessions rows as ended so the session
// table reflects what the redis registry has already forgotten.
type SessionSweepJob struct {
	Sessions SessionSweeper
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Now      func() time.Time
}

// Handle processes TaskSessionSweep tasks.
func (j *SessionSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Sessions == nil {
		return errors.New("session sweep: handler not configured")
	}
	now := time.Now().UTC()
	if j.Now != nil {
		now = j.Now()
	}
	tracker := j.Metrics.Track(TaskSessionSweep)
	ended, err := j.Sessions.EndExpiredSessions(ctx, now)
	if err != nil {
		return tracker.End(err)
	}
	if ended > 0 && j.Logger != nil {
		j.Logger.Info("expired sessions closed", slog.Int64("count", ended))
	}
	return tracker.End(nil)
}
