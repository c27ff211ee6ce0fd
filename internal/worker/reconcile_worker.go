package worker

import (
	"context"
	"sync"
	"time"

	"callcenter-service/internal/domain"

	"go.uber.org/zap"
)

type Reconciler interface {
	Run(ctx context.Context) (*domain.ReconcileReport, error)
}

// ReconcileWorker runs reconciliation on a fixed interval until stopped.
type ReconcileWorker struct {
	reconciler Reconciler
	interval   time.Duration
	logger     *zap.Logger
	stopChan   chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

func NewReconcileWorker(r Reconciler, interval time.Duration, logger *zap.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		reconciler: r,
		interval:   interval,
		logger:     logger,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) {
	defer close(w.done)
	w.logger.Info("starting reconcile worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runOnce(ctx)
		case <-w.stopChan:
			w.logger.Info("stopping reconcile worker")
			return
		case <-ctx.Done():
			w.logger.Info("context cancelled, stopping reconcile worker")
			return
		}
	}
}

func (w *ReconcileWorker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()
	if _, err := w.reconciler.Run(runCtx); err != nil {
		w.logger.Error("scheduled reconcile failed", zap.Error(err))
	}
}

// Stop signals the loop and waits for it to exit.
func (w *ReconcileWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.done
}
