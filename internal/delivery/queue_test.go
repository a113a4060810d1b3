package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/model"
	"github.com/fintrack/wa-gateway/internal/storage"
)

type mockSender struct {
	SendMessageFunc func(ctx context.Context, recipient, text string) error

	mu    sync.Mutex
	calls []string
}

func (m *mockSender) SendMessage(ctx context.Context, recipient, text string) error {
	m.mu.Lock()
	m.calls = append(m.calls, recipient)
	m.mu.Unlock()
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, recipient, text)
	}
	return nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func setupQueue(t *testing.T, sender Sender) (*Queue, *storage.SQLiteStorage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	q := NewQueue(store, sender, Config{
		Concurrency:    2,
		RatePerMinute:  6000,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}, slog.Default())
	q.sleep = func(_ context.Context, _ time.Duration) bool { return true }
	t.Cleanup(func() { _ = q.Close() })

	return q, store
}

// waitForStatus polls until the job reaches the wanted status.
func waitForStatus(t *testing.T, store *storage.SQLiteStorage, jobID string, want model.JobStatus) *model.DeliveryJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestQueueDeliversMessage(t *testing.T) {
	sender := &mockSender{}
	q, store := setupQueue(t, sender)
	ctx := context.Background()

	require.NoError(t, q.Start(ctx))

	job, err := q.Enqueue(ctx, Request{
		UserID:    "user-1",
		Recipient: "6281234567890",
		Body:      "halo",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, job.Status)

	done := waitForStatus(t, store, job.ID, model.StatusSent)
	assert.Equal(t, 1, done.AttemptsMade)
	assert.NotNil(t, done.SentAt)
	assert.Equal(t, 1, sender.callCount())

	log, err := store.GetDeliveryLog(ctx, job.ID, 10)
	require.NoError(t, err)
	// PENDING on create, QUEUED for the attempt, SENT on success.
	require.Len(t, log, 3)
	assert.Equal(t, model.StatusSent, log[0].Status)
}

func TestQueueRetriesUntilExhausted(t *testing.T) {
	sender := &mockSender{
		SendMessageFunc: func(_ context.Context, _, _ string) error {
			return fmt.Errorf("send timeout")
		},
	}
	q, store := setupQueue(t, sender)
	ctx := context.Background()

	require.NoError(t, q.Start(ctx))

	job, err := q.Enqueue(ctx, Request{
		UserID:    "user-1",
		Recipient: "6281234567890",
		Body:      "halo",
	})
	require.NoError(t, err)

	// Intermediate failed attempts also surface as FAILED before the
	// next QUEUED transition, so wait for the retry budget to empty.
	deadline := time.Now().Add(5 * time.Second)
	var done *model.DeliveryJob
	for time.Now().Before(deadline) {
		j, err := store.GetJob(ctx, job.ID)
		require.NoError(t, err)
		if j.Status == model.StatusFailed && j.AttemptsMade == 3 {
			done = j
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, done, "job never reached terminal failure")
	assert.Equal(t, "send timeout", done.ErrorMessage)
	assert.Equal(t, 3, sender.callCount())

	log, err := store.GetDeliveryLog(ctx, job.ID, 20)
	require.NoError(t, err)

	var failed int
	for _, entry := range log {
		if entry.Status == model.StatusFailed {
			failed++
		}
	}
	assert.Equal(t, 3, failed)
}

func TestQueueLoggedOutIsNotRetried(t *testing.T) {
	sender := &mockSender{
		SendMessageFunc: func(_ context.Context, _, _ string) error {
			return common.ErrLoggedOut
		},
	}
	q, store := setupQueue(t, sender)
	ctx := context.Background()

	require.NoError(t, q.Start(ctx))

	job, err := q.Enqueue(ctx, Request{
		UserID:    "user-1",
		Recipient: "6281234567890",
		Body:      "halo",
	})
	require.NoError(t, err)

	done := waitForStatus(t, store, job.ID, model.StatusFailed)
	assert.Equal(t, 1, done.AttemptsMade)
	assert.Equal(t, 1, sender.callCount())
}

func TestEnqueueValidation(t *testing.T) {
	q, _ := setupQueue(t, &mockSender{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, Request{Body: "halo"})
	assert.Error(t, err)

	_, err = q.Enqueue(ctx, Request{Recipient: "6281234567890"})
	assert.Error(t, err)
}

func TestEnqueueBulkPartialFailure(t *testing.T) {
	sender := &mockSender{}
	q, store := setupQueue(t, sender)
	ctx := context.Background()

	require.NoError(t, q.Start(ctx))

	results := q.EnqueueBulk(ctx, []Request{
		{UserID: "user-1", Recipient: "6281111111111", Body: "satu"},
		{UserID: "user-1", Recipient: "", Body: "dua"},
		{UserID: "user-1", Recipient: "6283333333333", Body: "tiga"},
	})

	require.Len(t, results, 3)
	assert.True(t, results[0].Accepted)
	assert.False(t, results[1].Accepted)
	assert.NotEmpty(t, results[1].Error)
	assert.True(t, results[2].Accepted)

	waitForStatus(t, store, results[0].JobID, model.StatusSent)
	waitForStatus(t, store, results[2].JobID, model.StatusSent)
}

func TestQueueRecoversUnfinishedJobs(t *testing.T) {
	sender := &mockSender{}
	q, store := setupQueue(t, sender)
	ctx := context.Background()

	// Simulate a job accepted before a crash: persisted but never
	// dispatched.
	orphan := &model.DeliveryJob{
		ID:        uuid.New().String(),
		UserID:    "user-1",
		Recipient: "6281234567890",
		Body:      "tertinggal",
		Status:    model.StatusPending,
	}
	require.NoError(t, store.CreateJob(ctx, orphan))

	require.NoError(t, q.Start(ctx))

	done := waitForStatus(t, store, orphan.ID, model.StatusSent)
	assert.Equal(t, 1, done.AttemptsMade)
}

func TestQueueClosedRejectsEnqueue(t *testing.T) {
	q, _ := setupQueue(t, &mockSender{})
	require.NoError(t, q.Start(context.Background()))
	require.NoError(t, q.Close())

	_, err := q.Enqueue(context.Background(), Request{Recipient: "628", Body: "halo"})
	assert.ErrorIs(t, err, common.ErrQueueClosed)
}
