// Package worker runs fire-and-forget model retraining in a bounded pool.
// Scheduling is best-effort: a full queue drops the request with a warning
// instead of blocking the caller, and no ordering is guaranteed between
// requests for the same product.
package worker

import (
	"errors"
	"sync"

	"inventory-service/internal/apperr"
	"inventory-service/prometheus"

	"go.uber.org/zap"
)

// RetrainFunc performs one retraining pass for a product.
type RetrainFunc func(productID string) error

// Retrainer owns the retrain queue and its workers.
type Retrainer struct {
	queue   chan string
	retrain RetrainFunc
	logger  *zap.Logger
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRetrainer starts workers consuming an internal queue of product ids.
func NewRetrainer(workers, queueSize int, retrain RetrainFunc, logger *zap.Logger) *Retrainer {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	r := &Retrainer{
		queue:   make(chan string, queueSize),
		retrain: retrain,
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.run()
	}
	return r
}

// Schedule enqueues a retrain request without blocking. When the queue is
// full the request is dropped; the originating transaction already committed
// and must not wait on model maintenance.
func (r *Retrainer) Schedule(productID string) {
	select {
	case r.queue <- productID:
		r.logger.Debug("Retrain scheduled", zap.String("product_id", productID))
	default:
		prometheus.RetrainQueueDropped.Inc()
		r.logger.Warn("Retrain queue full, dropping request",
			zap.String("product_id", productID))
	}
}

// Stop drains the queue and waits for in-flight retrains to finish.
func (r *Retrainer) Stop() {
	r.once.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
}

func (r *Retrainer) run() {
	defer r.wg.Done()
	for productID := range r.queue {
		err := r.retrain(productID)
		switch {
		case err == nil:
			prometheus.RetrainOutcomeCounter.WithLabelValues("trained").Inc()
		case errors.Is(err, apperr.ErrInsufficientData):
			prometheus.RetrainOutcomeCounter.WithLabelValues("skipped").Inc()
			r.logger.Info("Retrain skipped",
				zap.String("product_id", productID),
				zap.Error(err))
		default:
			prometheus.RetrainOutcomeCounter.WithLabelValues("failed").Inc()
			r.logger.Error("Retrain failed",
				zap.String("product_id", productID),
				zap.Error(err))
		}
	}
}
