package models

import "time"

// Kafka topics for payment lifecycle events.
const (
	TopicPaymentCompleted     = "payments.completed"
	TopicPaymentFailed        = "payments.failed"
	TopicTicketIssueRequested = "tickets.issue.requested"
)

// PaymentEvent is published when a payment reaches a terminal outcome.
type PaymentEvent struct {
	PaymentID         string        `json:"payment_id"`
	PaymentReference  string        `json:"payment_reference"`
	ExternalReference string        `json:"external_reference,omitempty"`
	Amount            int64         `json:"amount"`
	Status            PaymentStatus `json:"status"`
	Reason            string        `json:"reason,omitempty"`
	OccurredAt        time.Time     `json:"occurred_at"`
}

// TicketIssueEvent asks the ticketing service to issue tickets for a
// completed payment.
type TicketIssueEvent struct {
	PaymentID   string    `json:"payment_id"`
	Amount      int64     `json:"amount"`
	TicketCount int       `json:"ticket_count"`
	OccurredAt  time.Time `json:"occurred_at"`
}
