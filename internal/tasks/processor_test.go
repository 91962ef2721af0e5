package tasks

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []enums.TaskStatus
}

func (o *recordingObserver) TaskUpdated(_ context.Context, task *models.Task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, task.Status)
}

func newTestProcessor(t *testing.T, svc Service, observer Observer) *Processor {
	t.Helper()
	p, err := NewProcessor(ProcessorParams{
		Service:  svc,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Observer: observer,
	})
	require.NoError(t, err)
	return p
}

func TestProcessNextCompletesTask(t *testing.T) {
	svc, _ := newTestService(t, 3)
	observer := &recordingObserver{}
	p := newTestProcessor(t, svc, observer)
	p.Register(enums.TaskTypePaymentSettlement, HandlerFunc(func(ctx context.Context, task *models.Task) (any, error) {
		return map[string]string{"result": "ok"}, nil
	}))
	task := enqueue(t, svc)

	processed, err := p.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	stored, err := svc.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusCompleted, stored.Status)
	assert.Equal(t, []enums.TaskStatus{enums.TaskStatusProcessing, enums.TaskStatusCompleted}, observer.statuses)

	processed, err = p.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessNextRetriesRetryableErrors(t *testing.T) {
	svc, _ := newTestService(t, 1)
	p := newTestProcessor(t, svc, nil)
	calls := 0
	p.Register(enums.TaskTypePaymentSettlement, HandlerFunc(func(ctx context.Context, task *models.Task) (any, error) {
		calls++
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "merchant api unavailable")
	}))
	task := enqueue(t, svc)

	for i := 0; i < 2; i++ {
		processed, err := p.ProcessNext(context.Background())
		require.NoError(t, err)
		require.True(t, processed)
	}
	assert.Equal(t, 2, calls)

	stored, err := svc.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "merchant api unavailable")
}

func TestProcessNextFailsNonRetryableErrors(t *testing.T) {
	svc, _ := newTestService(t, 3)
	p := newTestProcessor(t, svc, nil)
	p.Register(enums.TaskTypePaymentSettlement, HandlerFunc(func(ctx context.Context, task *models.Task) (any, error) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing merchant email")
	}))
	task := enqueue(t, svc)

	_, err := p.ProcessNext(context.Background())
	require.NoError(t, err)

	stored, err := svc.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusFailed, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
}

type cleanupHandler struct {
	err    error
	failed []*models.Task
}

func (h *cleanupHandler) Handle(context.Context, *models.Task) (any, error) {
	return nil, h.err
}

func (h *cleanupHandler) OnFailed(_ context.Context, task *models.Task) {
	h.failed = append(h.failed, task)
}

func TestProcessNextCallsFailureHandlerOnceAbandoned(t *testing.T) {
	svc, _ := newTestService(t, 1)
	p := newTestProcessor(t, svc, nil)
	handler := &cleanupHandler{err: pkgerrors.New(pkgerrors.CodeDependency, "oracle unavailable")}
	p.Register(enums.TaskTypePaymentSettlement, handler)
	task := enqueue(t, svc)

	_, err := p.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Empty(t, handler.failed, "a retry is still available")

	_, err = p.ProcessNext(context.Background())
	require.NoError(t, err)
	require.Len(t, handler.failed, 1)
	assert.Equal(t, task.ID, handler.failed[0].ID)
	assert.Equal(t, enums.TaskStatusFailed, handler.failed[0].Status)

	rejected := &cleanupHandler{err: pkgerrors.New(pkgerrors.CodeValidation, "callback rejected")}
	p.Register(enums.TaskTypePaymentSettlement, rejected)
	enqueue(t, svc)
	_, err = p.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Len(t, rejected.failed, 1)
}

func TestProcessNextEnforcesProcessingTimeout(t *testing.T) {
	svc, _ := newTestService(t, 0)
	p := newTestProcessor(t, svc, nil)
	p.Register(enums.TaskTypePaymentSettlement, HandlerFunc(func(ctx context.Context, task *models.Task) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	task, err := svc.Enqueue(context.Background(), EnqueueInput{Type: enums.TaskTypePaymentSettlement, ProcessingTimeoutMS: 20})
	require.NoError(t, err)

	start := time.Now()
	_, err = p.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	stored, err := svc.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Equal(t, TimeoutReason, *stored.Error)
}

func TestProcessNextRecoversPanics(t *testing.T) {
	svc, _ := newTestService(t, 0)
	p := newTestProcessor(t, svc, nil)
	p.Register(enums.TaskTypePaymentSettlement, HandlerFunc(func(ctx context.Context, task *models.Task) (any, error) {
		panic("boom")
	}))
	task := enqueue(t, svc)

	_, err := p.ProcessNext(context.Background())
	require.NoError(t, err)

	stored, err := svc.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusFailed, stored.Status)
}

func TestProcessorSkipsUnregisteredTypes(t *testing.T) {
	svc, _ := newTestService(t, 3)
	p := newTestProcessor(t, svc, nil)
	p.Register(enums.TaskTypePaymentConfirmation, HandlerFunc(func(ctx context.Context, task *models.Task) (any, error) {
		return nil, errors.New("should not run")
	}))
	task := enqueue(t, svc)

	processed, err := p.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)

	stored, err := svc.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusPending, stored.Status)
}

func TestRunRequiresHandlers(t *testing.T) {
	svc, _ := newTestService(t, 3)
	p := newTestProcessor(t, svc, nil)
	assert.Error(t, p.Run(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, _ := newTestService(t, 3)
	p := newTestProcessor(t, svc, nil)
	p.Register(enums.TaskTypePaymentSettlement, HandlerFunc(func(ctx context.Context, task *models.Task) (any, error) {
		return nil, nil
	}))
	task := enqueue(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stored, err := svc.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusCompleted, stored.Status)
}
