package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/samuell-k/booking-center-sub004/internal/aggregator"
	"github.com/samuell-k/booking-center-sub004/internal/metrics"
	"github.com/samuell-k/booking-center-sub004/internal/models"
)

// PollOutcome is the result of one reconciliation loop.
type PollOutcome string

const (
	PollCompleted PollOutcome = "completed"
	PollFailed    PollOutcome = "failed"
	// PollTimeout means the attempt budget ran out with the payment still
	// in flight. It is distinct from failure: the payment stays in
	// processing and a webhook may still resolve it.
	PollTimeout   PollOutcome = "timeout"
	PollCancelled PollOutcome = "cancelled"
)

type ReconcilerConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:    5 * time.Second,
		MaxAttempts: 72,
	}
}

// Reconciler polls the aggregator for a submitted payment until it reaches a
// terminal state or the attempt budget runs out, funneling every transition
// through the payment state machine so poller and webhook cannot disagree.
type Reconciler struct {
	payments *PaymentService
	cfg      ReconcilerConfig
	logger   *zap.Logger
}

func NewReconciler(payments *PaymentService, cfg ReconcilerConfig, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		payments: payments,
		cfg:      cfg,
		logger:   logger,
	}
}

// Reconcile runs the polling loop for one payment against the channel that
// accepted it. Network errors during a poll consume the attempt and the loop
// continues: transient connectivity must not prematurely fail a real payment.
func (r *Reconciler) Reconcile(ctx context.Context, payment *models.Payment, channel AggregatorClient) (PollOutcome, error) {
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciliation cancelled",
				zap.String("payment_id", payment.ID),
				zap.Int("attempt", attempt))
			return PollCancelled, ctx.Err()
		case <-time.After(r.cfg.Interval):
		}

		metrics.ReconciliationPolls.Inc()

		status, err := channel.GetTransactionStatus(ctx, payment.PaymentReference, payment.ExternalReference)
		if err != nil {
			r.logger.Debug("status poll attempt failed",
				zap.String("payment_id", payment.ID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		_, class := aggregator.ClassifyResponseCode(status.ResponseCode)
		switch class {
		case aggregator.OutcomePending:
			r.logger.Debug("payment still in flight",
				zap.String("payment_id", payment.ID),
				zap.Int("attempt", attempt),
				zap.String("message", status.Message))

		case aggregator.OutcomeSuccess:
			if _, err := r.payments.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusCompleted, ""); err != nil {
				if errors.Is(err, ErrInvalidTransition) {
					// A webhook got there first.
					return PollCompleted, nil
				}
				return PollCompleted, err
			}
			return PollCompleted, nil

		default:
			if _, err := r.payments.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusFailed, status.Message); err != nil {
				if errors.Is(err, ErrInvalidTransition) {
					return PollFailed, nil
				}
				return PollFailed, err
			}
			r.logger.Warn("payment failed at aggregator",
				zap.String("payment_id", payment.ID),
				zap.String("response_code", status.ResponseCode),
				zap.String("message", status.Message))
			return PollFailed, nil
		}
	}

	metrics.ReconciliationTimeouts.Inc()
	r.logger.Warn("poll budget exhausted without a terminal status",
		zap.String("payment_id", payment.ID),
		zap.Int("attempts", r.cfg.MaxAttempts))
	return PollTimeout, ErrPollTimeout
}
