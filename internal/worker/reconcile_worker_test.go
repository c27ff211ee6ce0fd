package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"callcenter-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingReconciler struct {
	runs atomic.Int32
	err  error
}

func (c *countingReconciler) Run(context.Context) (*domain.ReconcileReport, error) {
	c.runs.Add(1)
	return &domain.ReconcileReport{}, c.err
}

func TestWorkerRunsOnTickAndStops(t *testing.T) {
	rec := &countingReconciler{}
	w := NewReconcileWorker(rec, 5*time.Millisecond, zap.NewNop())
	go w.Start(context.Background())

	assert.Eventually(t, func() bool { return rec.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	w.Stop()
	w.Stop()
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	rec := &countingReconciler{err: errors.New("db down")}
	w := NewReconcileWorker(rec, time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)

	assert.Eventually(t, func() bool { return rec.runs.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()
	w.Stop()
}
