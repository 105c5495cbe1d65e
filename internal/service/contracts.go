package service

import (
	"context"
	"time"

	"github.com/samuell-k/booking-center-sub004/internal/aggregator"
	"github.com/samuell-k/booking-center-sub004/internal/models"
)

// PaymentStore is the persistence contract the state machine runs on.
// Implemented by repository.PaymentRepository (PostgreSQL) and
// repository.MemoryRepository (tests, local development).
type PaymentStore interface {
	CreateIdempotent(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error)
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	TransitionStatus(ctx context.Context, id string, from, to models.PaymentStatus, reason string) (bool, error)
	SetExternalReference(ctx context.Context, id, reference string) error
	SetPaymentReference(ctx context.Context, id, reference string) error
	IncrementRetry(ctx context.Context, id string) error
	CountRecentByPhone(ctx context.Context, phone string, window time.Duration) (int, error)
	AverageAmountByEmail(ctx context.Context, email string) (float64, error)
}

// AggregatorClient is one mobile-money channel.
type AggregatorClient interface {
	Name() string
	RequestPayment(ctx context.Context, requestID, phone string, amount int64, description string) (*aggregator.PaymentResult, error)
	GetTransactionStatus(ctx context.Context, requestID, externalID string) (*aggregator.StatusResult, error)
	GetAccountBalance(ctx context.Context) (*aggregator.BalanceResult, error)
}

// FraudScorer screens payments before submission.
type FraudScorer interface {
	Score(ctx context.Context, payment *models.Payment) (int, error)
	Threshold() int
}

// ReservationService is the external seat-hold collaborator. GetReservation
// returns nil (not an error) when the token is unknown.
type ReservationService interface {
	GetReservation(ctx context.Context, token string) (*models.Reservation, error)
}

// EventPublisher emits payment lifecycle events. Implemented by the Kafka
// publisher.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, message interface{}) error
}

// IdempotencyCache is an optional short-TTL fast path in front of the
// database unique constraint. pkg/redis.Client satisfies it.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}
