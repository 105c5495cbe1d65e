package models

import "time"

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

type PaymentMethod string

const (
	MethodMTNMomo     PaymentMethod = "mtn_momo"
	MethodAirtelMoney PaymentMethod = "airtel_money"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodMTNMomo, MethodAirtelMoney:
		return true
	default:
		return false
	}
}

// automaticTransitions is the state graph driven by submission, the poller
// and webhooks. pending -> failed covers submission that never got an
// aggregator acknowledgement; failed -> pending happens only through an
// explicit retry. Cancellation is a separate user-initiated operation and is
// not part of this graph.
var automaticTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusFailed:     {PaymentStatusPending},
	PaymentStatusCompleted:  {},
	PaymentStatusCancelled:  {},
}

// CanTransitionTo reports whether moving from s to target is a valid
// lifecycle transition.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, next := range automaticTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automatic progression leaves s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusCancelled
}

// Cancellable reports whether an explicit user cancellation may move s to
// cancelled.
func (s PaymentStatus) Cancellable() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

type Payment struct {
	ID                string        `json:"id" db:"id"`
	PaymentReference  string        `json:"payment_reference" db:"payment_reference"`
	ExternalReference string        `json:"external_reference,omitempty" db:"external_reference"`
	Amount            int64         `json:"amount" db:"amount"`
	Method            PaymentMethod `json:"method" db:"method"`
	CustomerPhone     string        `json:"customer_phone" db:"customer_phone"`
	CustomerEmail     string        `json:"customer_email" db:"customer_email"`
	CustomerName      string        `json:"customer_name,omitempty" db:"customer_name"`
	IdempotencyKey    string        `json:"idempotency_key" db:"idempotency_key"`
	Status            PaymentStatus `json:"status" db:"status"`
	FraudScore        int           `json:"fraud_score" db:"fraud_score"`
	RetryCount        int           `json:"retry_count" db:"retry_count"`
	TicketCount       int           `json:"ticket_count" db:"ticket_count"`
	Description       string        `json:"description,omitempty" db:"description"`
	FailureReason     string        `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

type PaymentRequest struct {
	Amount           int64         `json:"amount" binding:"required,gt=0"`
	Method           PaymentMethod `json:"method" binding:"required"`
	CustomerPhone    string        `json:"customer_phone" binding:"required"`
	CustomerEmail    string        `json:"customer_email" binding:"required,email"`
	CustomerName     string        `json:"customer_name"`
	IdempotencyKey   string        `json:"idempotency_key" binding:"required"`
	ReservationToken string        `json:"reservation_token"`
	TicketCount      int           `json:"ticket_count"`
	Description      string        `json:"description"`
}

type PaymentResponse struct {
	Payment *Payment `json:"payment"`
	Message string   `json:"message,omitempty"`
}

// Reservation is a short-lived seat hold owned by the reservation service.
// The engine only validates it, never creates or extends it.
type Reservation struct {
	Token       string    `json:"token"`
	EventID     string    `json:"event_id"`
	TicketCount int       `json:"ticket_count"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// WebhookPayload is the aggregator's asynchronous callback body.
type WebhookPayload struct {
	RequestTransactionID string `json:"requesttransactionid"`
	TransactionID        string `json:"transactionid"`
	ResponseCode         string `json:"responsecode"`
	Status               string `json:"status"`
	Message              string `json:"message,omitempty"`
}

// Database schema
const PaymentSchema = `
CREATE TABLE IF NOT EXISTS payments (
    id VARCHAR(36) PRIMARY KEY,
    payment_reference VARCHAR(64) NOT NULL UNIQUE,
    external_reference VARCHAR(64),
    amount BIGINT NOT NULL,
    method VARCHAR(20) NOT NULL,
    customer_phone VARCHAR(20) NOT NULL,
    customer_email VARCHAR(255) NOT NULL,
    customer_name VARCHAR(255),
    idempotency_key VARCHAR(255) NOT NULL UNIQUE,
    status VARCHAR(20) NOT NULL,
    fraud_score INT NOT NULL DEFAULT 0,
    retry_count INT NOT NULL DEFAULT 0,
    ticket_count INT NOT NULL DEFAULT 1,
    description TEXT,
    failure_reason TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_payments_status ON payments (status);
CREATE INDEX IF NOT EXISTS idx_payments_customer_phone ON payments (customer_phone);
CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments (created_at);
`
