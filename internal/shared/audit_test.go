package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	sql  string
	args []any
	err  error
}

func (r *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.CommandTag{}, r.err
}

func TestAuditLoggerRecord(t *testing.T) {
	execer := &recordingExecer{}
	logger := NewAuditLogger(execer)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := logger.Record(context.Background(), AuditLog{
		ActorID:  1,
		Action:   "grant.assign",
		Entity:   "user_role",
		EntityID: "9",
		Meta:     map[string]any{"role_id": 3},
		At:       at,
	})
	require.NoError(t, err)
	assert.Contains(t, execer.sql, "INSERT INTO audit_logs")
	require.Len(t, execer.args, 6)
	assert.Equal(t, int64(1), execer.args[0])
	assert.JSONEq(t, `{"role_id":3}`, string(execer.args[4].([]byte)))
	assert.Equal(t, &at, execer.args[5])
}

func TestAuditLoggerRejectsIncompleteRecord(t *testing.T) {
	execer := &recordingExecer{}
	err := NewAuditLogger(execer).Record(context.Background(), AuditLog{Action: "grant.assign"})
	require.Error(t, err)
	assert.Empty(t, execer.sql)
}

func TestAuditLoggerPropagatesStorageError(t *testing.T) {
	execer := &recordingExecer{err: errors.New("conn reset")}
	err := NewAuditLogger(execer).Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"})
	require.EqualError(t, err, "conn reset")
}
