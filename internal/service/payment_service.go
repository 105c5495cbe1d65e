package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/samuell-k/booking-center-sub004/internal/aggregator"
	"github.com/samuell-k/booking-center-sub004/internal/metrics"
	"github.com/samuell-k/booking-center-sub004/internal/models"
)

type Config struct {
	MaxRetries          int
	IdempotencyCacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:          3,
		IdempotencyCacheTTL: 24 * time.Hour,
	}
}

// PaymentService owns the payment lifecycle. It is the single serialization
// point for status mutations: every transition is checked and applied under
// a per-payment lock, backed by an optimistic status predicate in the store,
// so the initiating request, the reconciliation poller and inbound webhooks
// can race safely.
type PaymentService struct {
	repo         PaymentStore
	failover     *FailoverOrchestrator
	scorer       FraudScorer
	reservations ReservationService
	publisher    EventPublisher
	cache        IdempotencyCache
	reconciler   *Reconciler
	logger       *zap.Logger
	cfg          Config

	locks *keyedMutex

	pollMu      sync.Mutex
	pollCancels map[string]context.CancelFunc
}

// NewPaymentService wires the state machine. reservations, publisher and
// cache may be nil; the corresponding behavior is skipped.
func NewPaymentService(repo PaymentStore, failover *FailoverOrchestrator, scorer FraudScorer,
	reservations ReservationService, publisher EventPublisher, cache IdempotencyCache,
	logger *zap.Logger, cfg Config) *PaymentService {
	return &PaymentService{
		repo:         repo,
		failover:     failover,
		scorer:       scorer,
		reservations: reservations,
		publisher:    publisher,
		cache:        cache,
		logger:       logger,
		cfg:          cfg,
		locks:        newKeyedMutex(),
		pollCancels:  make(map[string]context.CancelFunc),
	}
}

// AttachReconciler enables background polling after successful submissions.
func (s *PaymentService) AttachReconciler(r *Reconciler) {
	s.reconciler = r
}

// InitiatePayment runs the full intake path: idempotency-key deduplication,
// reservation validation, fraud screening, payment creation and submission
// through the failover orchestrator. A repeated idempotency key returns the
// existing payment verbatim with no side effects.
func (s *PaymentService) InitiatePayment(ctx context.Context, req *models.PaymentRequest) (*models.Payment, error) {
	if cached := s.cachedPayment(ctx, req.IdempotencyKey); cached != nil {
		return cached, nil
	}
	if existing, err := s.repo.GetByIdempotencyKey(ctx, req.IdempotencyKey); err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	if !req.Method.IsValid() {
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrValidation, req.Method)
	}
	phone, err := aggregator.NormalizePhone(req.CustomerPhone)
	if err != nil {
		return nil, err
	}
	if req.Amount < aggregator.DefaultMinAmount {
		return nil, fmt.Errorf("%w: amount %d is below the minimum of %d", ErrValidation, req.Amount, aggregator.DefaultMinAmount)
	}

	if req.ReservationToken != "" && s.reservations != nil {
		reservation, err := s.reservations.GetReservation(ctx, req.ReservationToken)
		if err != nil {
			return nil, fmt.Errorf("reservation lookup: %w", err)
		}
		if reservation == nil || reservation.Expired(time.Now()) {
			return nil, ErrInvalidReservation
		}
	}

	ticketCount := req.TicketCount
	if ticketCount <= 0 {
		ticketCount = 1
	}

	now := time.Now()
	payment := &models.Payment{
		ID:               uuid.New().String(),
		PaymentReference: aggregator.NewTransactionID(),
		Amount:           req.Amount,
		Method:           req.Method,
		CustomerPhone:    phone,
		CustomerEmail:    req.CustomerEmail,
		CustomerName:     req.CustomerName,
		IdempotencyKey:   req.IdempotencyKey,
		Status:           models.PaymentStatusPending,
		TicketCount:      ticketCount,
		Description:      req.Description,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	score, err := s.scorer.Score(ctx, payment)
	if err != nil {
		return nil, fmt.Errorf("fraud screening: %w", err)
	}
	payment.FraudScore = score
	if score >= s.scorer.Threshold() {
		metrics.FraudRejections.Inc()
		s.logger.Warn("payment rejected by fraud screening",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("customer_phone", phone),
			zap.Int("fraud_score", score))
		return nil, ErrFraudRejected
	}

	stored, created, err := s.repo.CreateIdempotent(ctx, payment)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	if !created {
		// Lost the race to a concurrent duplicate request.
		return stored, nil
	}

	metrics.PaymentsInitiated.Inc()

	unlock := s.locks.Lock(payment.ID)
	defer unlock()

	return s.submit(ctx, payment)
}

// submit drives a pending payment through the failover orchestrator and, on
// acknowledgement, into processing. Caller must hold the payment lock.
func (s *PaymentService) submit(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	result, channel, err := s.failover.ProcessPayment(ctx, payment)
	if err != nil {
		if errors.Is(err, ErrAllProvidersFailed) {
			s.markFailed(ctx, payment, models.PaymentStatusPending, "all payment providers failed")
		}
		return payment, err
	}

	if !result.Success {
		s.markFailed(ctx, payment, models.PaymentStatusPending, result.Message)
		return payment, fmt.Errorf("%w: %s", ErrProviderRejected, result.Message)
	}

	if err := s.repo.SetExternalReference(ctx, payment.ID, result.ExternalReference); err != nil {
		return nil, fmt.Errorf("failed to record external reference: %w", err)
	}
	payment.ExternalReference = result.ExternalReference

	if _, err := s.repo.TransitionStatus(ctx, payment.ID, models.PaymentStatusPending, models.PaymentStatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("failed to mark payment processing: %w", err)
	}
	payment.Status = models.PaymentStatusProcessing

	s.cachePayment(ctx, payment)
	s.startReconciliation(payment, channel)

	s.logger.Info("payment submitted",
		zap.String("payment_id", payment.ID),
		zap.String("payment_reference", payment.PaymentReference),
		zap.String("external_reference", payment.ExternalReference),
		zap.String("channel", channel.Name()))

	return payment, nil
}

// UpdatePaymentStatus applies a lifecycle transition. Re-applying the
// current status is an idempotent no-op so duplicate webhook deliveries do
// not error; any other unreachable transition fails with ErrInvalidTransition
// and leaves the payment unchanged.
func (s *PaymentService) UpdatePaymentStatus(ctx context.Context, id string, newStatus models.PaymentStatus, reason string) (*models.Payment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	if payment.Status == newStatus {
		return payment, nil
	}
	if !payment.Status.CanTransitionTo(newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, payment.Status, newStatus)
	}

	applied, err := s.repo.TransitionStatus(ctx, id, payment.Status, newStatus, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: payment %s changed concurrently", ErrInvalidTransition, id)
	}

	payment, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch newStatus {
	case models.PaymentStatusCompleted:
		metrics.PaymentsCompleted.Inc()
		s.cancelReconciliation(id)
		s.emitCompletion(ctx, payment)
	case models.PaymentStatusFailed:
		metrics.PaymentsFailed.Inc()
		s.cancelReconciliation(id)
		s.emitFailure(ctx, payment)
	}

	return payment, nil
}

// RetryPayment resubmits a failed payment under a fresh merchant transaction
// id, bounded by MaxRetries.
func (s *PaymentService) RetryPayment(ctx context.Context, id string) (*models.Payment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if payment.Status != models.PaymentStatusFailed {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRetryable, payment.Status)
	}
	if payment.RetryCount >= s.cfg.MaxRetries {
		return nil, ErrRetryLimitExceeded
	}

	if err := s.repo.IncrementRetry(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to record retry: %w", err)
	}

	// The aggregator rejects reused requesttransactionids, so every
	// attempt gets a new one.
	reference := aggregator.NewTransactionID()
	if err := s.repo.SetPaymentReference(ctx, id, reference); err != nil {
		return nil, fmt.Errorf("failed to rotate payment reference: %w", err)
	}

	if _, err := s.repo.TransitionStatus(ctx, id, models.PaymentStatusFailed, models.PaymentStatusPending, ""); err != nil {
		return nil, fmt.Errorf("failed to reset payment for retry: %w", err)
	}

	payment, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("retrying payment",
		zap.String("payment_id", id),
		zap.String("payment_reference", reference),
		zap.Int("retry_count", payment.RetryCount))

	return s.submit(ctx, payment)
}

// CancelPayment handles an explicit user or reservation cancellation. Only
// pending and processing payments can be cancelled.
func (s *PaymentService) CancelPayment(ctx context.Context, id string) (*models.Payment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if !payment.Status.Cancellable() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotCancellable, payment.Status)
	}

	applied, err := s.repo.TransitionStatus(ctx, id, payment.Status, models.PaymentStatusCancelled, "cancelled by user")
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: payment %s changed concurrently", ErrNotCancellable, id)
	}

	s.cancelReconciliation(id)
	s.logger.Info("payment cancelled", zap.String("payment_id", id))

	return s.repo.GetByID(ctx, id)
}

// GetPayment is the status-fetch path clients poll instead of trusting any
// client-side completion signal.
func (s *PaymentService) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// GetAccountBalance queries the merchant balance on the primary channel.
func (s *PaymentService) GetAccountBalance(ctx context.Context) (*aggregator.BalanceResult, error) {
	return s.failover.Primary().GetAccountBalance(ctx)
}

// ApplyWebhook applies a verified callback to the state machine. The caller
// must have verified the signature already. A webhook that arrives after the
// payment reached a terminal state is a no-op, not an error.
func (s *PaymentService) ApplyWebhook(ctx context.Context, payload *models.WebhookPayload) (*models.Payment, error) {
	payment, err := s.repo.GetByReference(ctx, payload.RequestTransactionID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	message, class := aggregator.ClassifyResponseCode(payload.ResponseCode)
	if payload.Message != "" {
		message = payload.Message
	}

	var target models.PaymentStatus
	switch class {
	case aggregator.OutcomeSuccess:
		target = models.PaymentStatusCompleted
	case aggregator.OutcomePending:
		// Nothing to apply yet; the poller keeps watching.
		return payment, nil
	default:
		target = models.PaymentStatusFailed
	}

	updated, err := s.UpdatePaymentStatus(ctx, payment.ID, target, message)
	if errors.Is(err, ErrInvalidTransition) {
		s.logger.Info("webhook arrived after terminal state, ignoring",
			zap.String("payment_id", payment.ID),
			zap.String("target_status", string(target)))
		return payment, nil
	}
	return updated, err
}

func (s *PaymentService) markFailed(ctx context.Context, payment *models.Payment, from models.PaymentStatus, reason string) {
	if !from.CanTransitionTo(models.PaymentStatusFailed) {
		s.logger.Error("refusing failure transition outside the lifecycle graph",
			zap.String("payment_id", payment.ID), zap.String("from", string(from)))
		return
	}
	applied, err := s.repo.TransitionStatus(ctx, payment.ID, from, models.PaymentStatusFailed, reason)
	if err != nil {
		s.logger.Error("failed to mark payment failed", zap.String("payment_id", payment.ID), zap.Error(err))
		return
	}
	if applied {
		payment.Status = models.PaymentStatusFailed
		payment.FailureReason = reason
		metrics.PaymentsFailed.Inc()
		s.emitFailure(ctx, payment)
	}
}

func (s *PaymentService) emitCompletion(ctx context.Context, payment *models.Payment) {
	s.publish(ctx, models.TopicPaymentCompleted, models.PaymentEvent{
		PaymentID:         payment.ID,
		PaymentReference:  payment.PaymentReference,
		ExternalReference: payment.ExternalReference,
		Amount:            payment.Amount,
		Status:            payment.Status,
		OccurredAt:        time.Now(),
	})
	s.publish(ctx, models.TopicTicketIssueRequested, models.TicketIssueEvent{
		PaymentID:   payment.ID,
		Amount:      payment.Amount,
		TicketCount: payment.TicketCount,
		OccurredAt:  time.Now(),
	})
}

func (s *PaymentService) emitFailure(ctx context.Context, payment *models.Payment) {
	s.publish(ctx, models.TopicPaymentFailed, models.PaymentEvent{
		PaymentID:         payment.ID,
		PaymentReference:  payment.PaymentReference,
		ExternalReference: payment.ExternalReference,
		Amount:            payment.Amount,
		Status:            payment.Status,
		Reason:            payment.FailureReason,
		OccurredAt:        time.Now(),
	})
}

// publish emits an event best-effort: a broker outage must not fail a
// payment that already settled.
func (s *PaymentService) publish(ctx context.Context, topic string, message interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, message); err != nil {
		s.logger.Error("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}

// cachedPayment resolves an idempotency key through the cache fast path. The
// cache holds only the payment ID; the payment itself is re-read from the
// repository so a duplicate request always sees the current state, not a
// snapshot from submission time.
func (s *PaymentService) cachedPayment(ctx context.Context, key string) *models.Payment {
	if s.cache == nil || key == "" {
		return nil
	}
	id, err := s.cache.Get(ctx, "idempotency:"+key)
	if err != nil || id == "" {
		return nil
	}
	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil
	}
	return payment
}

func (s *PaymentService) cachePayment(ctx context.Context, payment *models.Payment) {
	if s.cache == nil || payment.IdempotencyKey == "" {
		return
	}
	if err := s.cache.Set(ctx, "idempotency:"+payment.IdempotencyKey, payment.ID, s.cfg.IdempotencyCacheTTL); err != nil {
		s.logger.Warn("failed to cache payment for idempotency", zap.Error(err))
	}
}

// startReconciliation launches the background poll loop for a submitted
// payment, detached from the request context so a closed connection does not
// stop reconciliation. CancelPayment stops it explicitly.
func (s *PaymentService) startReconciliation(payment *models.Payment, channel AggregatorClient) {
	if s.reconciler == nil {
		return
	}

	budget := s.reconciler.cfg.Interval * time.Duration(s.reconciler.cfg.MaxAttempts+2)
	ctx, cancel := context.WithTimeout(context.Background(), budget)

	s.pollMu.Lock()
	s.pollCancels[payment.ID] = cancel
	s.pollMu.Unlock()

	go func() {
		defer s.cancelReconciliation(payment.ID)
		outcome, err := s.reconciler.Reconcile(ctx, payment, channel)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("reconciliation finished with error",
				zap.String("payment_id", payment.ID),
				zap.String("outcome", string(outcome)),
				zap.Error(err))
		}
	}()
}

func (s *PaymentService) cancelReconciliation(id string) {
	s.pollMu.Lock()
	cancel, ok := s.pollCancels[id]
	if ok {
		delete(s.pollCancels, id)
	}
	s.pollMu.Unlock()
	if ok {
		cancel()
	}
}
