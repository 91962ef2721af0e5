package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unitpay/unitpay-gateway/internal/tasks"
	"github.com/unitpay/unitpay-gateway/pkg/config"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
)

type fakePinger struct {
	err   error
	calls int
}

func (f *fakePinger) Ping(context.Context) error {
	f.calls++
	return f.err
}

type idleTaskService struct {
	tasks.Service
}

func (idleTaskService) Claim(context.Context, ...enums.TaskType) (*models.Task, error) {
	return nil, nil
}

func newTestProcessor(t *testing.T, logg *logger.Logger) *tasks.Processor {
	t.Helper()
	processor, err := tasks.NewProcessor(tasks.ProcessorParams{Service: idleTaskService{}, Logger: logg})
	require.NoError(t, err)
	processor.Register(enums.TaskTypePaymentSettlement, tasks.HandlerFunc(func(context.Context, *models.Task) (any, error) {
		return nil, nil
	}))
	return processor
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	_, err := NewService(ServiceParams{Config: &config.Config{}, Logger: logg, DB: &fakePinger{}, Redis: &fakePinger{}})
	assert.Error(t, err)
}

func TestRunStopsWhenDependencyUnavailable(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	redisPing := &fakePinger{err: errors.New("connection refused")}
	chainPing := &fakePinger{}
	svc, err := NewService(ServiceParams{
		Config:    &config.Config{},
		Logger:    logg,
		DB:        &fakePinger{},
		Redis:     redisPing,
		Chain:     chainPing,
		Processor: newTestProcessor(t, logg),
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
	assert.Equal(t, 0, chainPing.calls)
}

func TestRunReturnsOnCancel(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Config:    &config.Config{},
		Logger:    logg,
		DB:        &fakePinger{},
		Redis:     &fakePinger{},
		Processor: newTestProcessor(t, logg),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
