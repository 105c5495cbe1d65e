package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/samuell-k/booking-center-sub004/internal/models"
)

// PaymentRepository persists payments in PostgreSQL. Concurrency-sensitive
// operations (idempotent create, status transition) are single statements so
// the database arbitrates races: the unique constraint on idempotency_key
// and the status predicate on the transition update.
type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Migrate creates the payments table if it does not exist.
func (r *PaymentRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, models.PaymentSchema)
	return err
}

// CreateIdempotent inserts the payment unless another payment already holds
// its idempotency key. It returns the stored payment and whether this call
// created it.
func (r *PaymentRepository) CreateIdempotent(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	query := `
		INSERT INTO payments (
			id, payment_reference, external_reference, amount, method,
			customer_phone, customer_email, customer_name, idempotency_key,
			status, fraud_score, retry_count, ticket_count, description,
			failure_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.PaymentReference,
		payment.ExternalReference,
		payment.Amount,
		payment.Method,
		payment.CustomerPhone,
		payment.CustomerEmail,
		payment.CustomerName,
		payment.IdempotencyKey,
		payment.Status,
		payment.FraudScore,
		payment.RetryCount,
		payment.TicketCount,
		payment.Description,
		payment.FailureReason,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if rows == 0 {
		existing, err := r.GetByIdempotencyKey(ctx, payment.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	return payment, true, nil
}

const selectColumns = `
	SELECT id, payment_reference, external_reference, amount, method,
		   customer_phone, customer_email, customer_name, idempotency_key,
		   status, fraud_score, retry_count, ticket_count, description,
		   failure_reason, created_at, updated_at, completed_at
	FROM payments
`

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
}

func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+` WHERE idempotency_key = $1`, key))
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+` WHERE payment_reference = $1`, reference))
}

// TransitionStatus moves the payment from one status to another only if it
// still holds the expected current status, stamping completed_at on the move
// to completed. Returns false when another actor won the race.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id string, from, to models.PaymentStatus, reason string) (bool, error) {
	query := `
		UPDATE payments
		SET status = $3,
			updated_at = NOW(),
			completed_at = CASE WHEN $3 = 'completed' THEN NOW() ELSE completed_at END,
			failure_reason = CASE WHEN $4 <> '' THEN $4 ELSE failure_reason END
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, from, to, reason)
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *PaymentRepository) SetExternalReference(ctx context.Context, id, reference string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET external_reference = $2, updated_at = NOW() WHERE id = $1`,
		id, reference)
	return err
}

// SetPaymentReference replaces the merchant transaction id. Retries need a
// fresh one because the aggregator rejects reused requesttransactionids.
func (r *PaymentRepository) SetPaymentReference(ctx context.Context, id, reference string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET payment_reference = $2, updated_at = NOW() WHERE id = $1`,
		id, reference)
	return err
}

func (r *PaymentRepository) IncrementRetry(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET retry_count = retry_count + 1, updated_at = NOW() WHERE id = $1`,
		id)
	return err
}

// CountRecentByPhone counts payments from a phone number within the trailing
// window, for the fraud velocity signal.
func (r *PaymentRepository) CountRecentByPhone(ctx context.Context, phone string, window time.Duration) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE customer_phone = $1 AND created_at > $2`,
		phone, time.Now().Add(-window)).Scan(&count)
	return count, err
}

// AverageAmountByEmail returns the customer's historical average completed
// amount, or zero when there is no history.
func (r *PaymentRepository) AverageAmountByEmail(ctx context.Context, email string) (float64, error) {
	var avg float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(amount), 0) FROM payments WHERE customer_email = $1 AND status = 'completed'`,
		email).Scan(&avg)
	return avg, err
}

func (r *PaymentRepository) scanOne(row *sql.Row) (*models.Payment, error) {
	payment := &models.Payment{}
	var externalRef, customerName, description, failureReason sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&payment.ID,
		&payment.PaymentReference,
		&externalRef,
		&payment.Amount,
		&payment.Method,
		&payment.CustomerPhone,
		&payment.CustomerEmail,
		&customerName,
		&payment.IdempotencyKey,
		&payment.Status,
		&payment.FraudScore,
		&payment.RetryCount,
		&payment.TicketCount,
		&description,
		&failureReason,
		&payment.CreatedAt,
		&payment.UpdatedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	payment.ExternalReference = externalRef.String
	payment.CustomerName = customerName.String
	payment.Description = description.String
	payment.FailureReason = failureReason.String
	if completedAt.Valid {
		payment.CompletedAt = &completedAt.Time
	}

	return payment, nil
}
