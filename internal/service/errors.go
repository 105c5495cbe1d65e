package service

import (
	"errors"

	"github.com/samuell-k/booking-center-sub004/internal/aggregator"
)

var (
	// ErrValidation covers bad customer input caught before any network
	// call. Shared with the aggregator client so handlers classify both
	// with one check.
	ErrValidation = aggregator.ErrValidation

	// ErrFraudRejected is deliberately generic: the triggering signal is
	// never revealed to the caller.
	ErrFraudRejected = errors.New("payment rejected for security concerns")

	ErrInvalidReservation = errors.New("reservation is missing or expired")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrInvalidTransition  = errors.New("invalid payment status transition")
	ErrNotRetryable       = errors.New("payment is not in a retryable state")
	ErrRetryLimitExceeded = errors.New("payment retry limit exceeded")
	ErrNotCancellable     = errors.New("payment can no longer be cancelled")

	// ErrProviderRejected is a business-level aggregator rejection.
	// Switching providers cannot fix it, so failover does not apply.
	ErrProviderRejected = errors.New("payment rejected by provider")

	// ErrAllProvidersFailed aggregates transport failures from every
	// configured channel.
	ErrAllProvidersFailed = errors.New("all payment providers failed")

	// ErrPollTimeout means the poll budget ran out without a terminal
	// status. The payment stays in processing: a webhook may still
	// resolve it.
	ErrPollTimeout = errors.New("status polling timed out without a terminal state")
)
