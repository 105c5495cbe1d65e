package repository

import (
	"context"
	"sync"
	"time"

	"github.com/samuell-k/booking-center-sub004/internal/models"
)

// MemoryRepository is a mutex-guarded in-memory payment store with the same
// contract as PaymentRepository. Used in tests and local development.
type MemoryRepository struct {
	mu    sync.Mutex
	byID  map[string]*models.Payment
	byKey map[string]string
	byRef map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*models.Payment),
		byKey: make(map[string]string),
		byRef: make(map[string]string),
	}
}

func (r *MemoryRepository) CreateIdempotent(_ context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[payment.IdempotencyKey]; ok {
		return clone(r.byID[id]), false, nil
	}

	stored := clone(payment)
	r.byID[stored.ID] = stored
	r.byKey[stored.IdempotencyKey] = stored.ID
	r.byRef[stored.PaymentReference] = stored.ID
	return clone(stored), true, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[id]; ok {
		return clone(p), nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetByIdempotencyKey(_ context.Context, key string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byKey[key]; ok {
		return clone(r.byID[id]), nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetByReference(_ context.Context, reference string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byRef[reference]; ok {
		return clone(r.byID[id]), nil
	}
	return nil, nil
}

func (r *MemoryRepository) TransitionStatus(_ context.Context, id string, from, to models.PaymentStatus, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok || p.Status != from {
		return false, nil
	}

	p.Status = to
	p.UpdatedAt = time.Now()
	if to == models.PaymentStatusCompleted {
		now := time.Now()
		p.CompletedAt = &now
	}
	if reason != "" {
		p.FailureReason = reason
	}
	return true, nil
}

func (r *MemoryRepository) SetExternalReference(_ context.Context, id, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[id]; ok {
		p.ExternalReference = reference
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MemoryRepository) SetPaymentReference(_ context.Context, id, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[id]; ok {
		delete(r.byRef, p.PaymentReference)
		p.PaymentReference = reference
		p.UpdatedAt = time.Now()
		r.byRef[reference] = id
	}
	return nil
}

func (r *MemoryRepository) IncrementRetry(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[id]; ok {
		p.RetryCount++
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MemoryRepository) CountRecentByPhone(_ context.Context, phone string, window time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-window)
	count := 0
	for _, p := range r.byID {
		if p.CustomerPhone == phone && p.CreatedAt.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) AverageAmountByEmail(_ context.Context, email string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum int64
	var n int
	for _, p := range r.byID {
		if p.CustomerEmail == email && p.Status == models.PaymentStatusCompleted {
			sum += p.Amount
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

func clone(p *models.Payment) *models.Payment {
	c := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
