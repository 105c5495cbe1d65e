package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/samuell-k/booking-center-sub004/internal/aggregator"
	"github.com/samuell-k/booking-center-sub004/internal/metrics"
	"github.com/samuell-k/booking-center-sub004/internal/models"
)

// FailoverOrchestrator submits a payment to the primary channel and falls
// back to the secondary on transport failure. Business-level rejections are
// returned as-is: switching providers will not fix a customer-input error.
type FailoverOrchestrator struct {
	channels []AggregatorClient
	logger   *zap.Logger
}

func NewFailoverOrchestrator(logger *zap.Logger, channels ...AggregatorClient) *FailoverOrchestrator {
	return &FailoverOrchestrator{
		channels: channels,
		logger:   logger,
	}
}

// Primary returns the first configured channel, used for balance queries.
func (f *FailoverOrchestrator) Primary() AggregatorClient {
	return f.channels[0]
}

// ProcessPayment attempts the channels in order and returns the first
// non-transport result together with the channel that produced it, so the
// reconciliation poller queries the same channel later.
func (f *FailoverOrchestrator) ProcessPayment(ctx context.Context, payment *models.Payment) (*aggregator.PaymentResult, AggregatorClient, error) {
	var errs []error

	for i, channel := range f.channels {
		if i > 0 {
			metrics.FailoverActivations.Inc()
			f.logger.Warn("falling back to secondary payment channel",
				zap.String("payment_id", payment.ID),
				zap.String("channel", channel.Name()))
		}

		result, err := channel.RequestPayment(ctx, payment.PaymentReference, payment.CustomerPhone, payment.Amount, payment.Description)
		if err != nil {
			if errors.Is(err, aggregator.ErrValidation) {
				return nil, nil, err
			}
			f.logger.Warn("payment channel failed",
				zap.String("payment_id", payment.ID),
				zap.String("channel", channel.Name()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", channel.Name(), err))
			continue
		}

		return result, channel, nil
	}

	return nil, nil, fmt.Errorf("%w: %v", ErrAllProvidersFailed, errors.Join(errs...))
}
