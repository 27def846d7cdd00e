package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/jobs"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeInspector struct {
	info  *asynq.QueueInfo
	retry []*asynq.TaskInfo
	err   error
}

func (f *fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func (f *fakeInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, f.err
}

func (f *fakeInspector) ListRetryTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.retry, f.err
}

func (f *fakeInspector) Close() error { return errors.New("inspector closed twice") }

func TestTriggerEnqueuesSessionSweep(t *testing.T) {
	client := &fakeEnqueuer{}
	c := &JobsCLI{client: client}

	info, err := c.Trigger(context.Background(), jobs.TaskSessionSweep)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskSessionSweep, info.Type)
	require.Len(t, client.tasks, 1)
}

func TestTriggerRejectsAuditRecord(t *testing.T) {
	c := &JobsCLI{client: &fakeEnqueuer{}}

	_, err := c.Trigger(context.Background(), jobs.TaskAuditRecord)
	require.Error(t, err)
	assert.Contains(t, err.Error(), jobs.TaskSessionSweep)
}

func TestInspectQueueReportsArchived(t *testing.T) {
	c := &JobsCLI{inspector: &fakeInspector{info: &asynq.QueueInfo{Pending: 2, Retry: 1, Archived: 4}}}

	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 2, Retry: 1, Archived: 4}, stats)
}

func TestListRetryingPutsAuditRecordsFirst(t *testing.T) {
	c := &JobsCLI{inspector: &fakeInspector{retry: []*asynq.TaskInfo{
		{ID: "a", Type: jobs.TaskSessionSweep},
		{ID: "b", Type: jobs.TaskAuditRecord},
		{ID: "c", Type: jobs.TaskAuditRecord},
	}}}

	tasks, err := c.ListRetrying(context.Background(), 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}

func TestCloseJoinsErrors(t *testing.T) {
	c := &JobsCLI{client: &fakeEnqueuer{}, inspector: &fakeInspector{}}
	assert.ErrorContains(t, c.Close(), "inspector closed twice")
}

func TestNewJobsCLIRequiresAddress(t *testing.T) {
	_, err := NewJobsCLI(asynq.RedisClientOpt{})
	require.Error(t, err)
}
