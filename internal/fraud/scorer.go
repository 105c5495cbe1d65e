package fraud

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/samuell-k/booking-center-sub004/internal/models"
)

// HistoryStore supplies the customer history the velocity and amount-anomaly
// signals read. The payment repository satisfies it.
type HistoryStore interface {
	CountRecentByPhone(ctx context.Context, phone string, window time.Duration) (int, error)
	AverageAmountByEmail(ctx context.Context, email string) (float64, error)
}

// Config holds the scoring policy. Defaults follow current product policy;
// every knob is configuration, not protocol.
type Config struct {
	Threshold        int
	VelocityWindow   time.Duration
	VelocityTrigger  int
	VelocityPoints   int
	AmountMultiplier float64
	AmountPoints     int
	EmailPoints      int
	NightStartHour   int
	NightEndHour     int
	NightPoints      int
}

func DefaultConfig() Config {
	return Config{
		Threshold:        70,
		VelocityWindow:   time.Hour,
		VelocityTrigger:  5,
		VelocityPoints:   30,
		AmountMultiplier: 5,
		AmountPoints:     25,
		EmailPoints:      20,
		NightStartHour:   0,
		NightEndHour:     5,
		NightPoints:      10,
	}
}

// suspiciousDomains are disposable-mail providers commonly used for
// throwaway accounts.
var suspiciousDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"tempmail.com":      true,
	"temp-mail.org":     true,
	"trashmail.com":     true,
	"yopmail.com":       true,
	"sharklasers.com":   true,
}

// Scorer computes a 0-100 risk score from independent additive signals.
type Scorer struct {
	history HistoryStore
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

func NewScorer(history HistoryStore, cfg Config, logger *zap.Logger) *Scorer {
	return &Scorer{
		history: history,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Threshold returns the rejection cutoff.
func (s *Scorer) Threshold() int {
	return s.cfg.Threshold
}

// Score runs every signal against the payment and returns the capped total.
// A signal whose history lookup fails contributes zero rather than blocking
// the payment.
func (s *Scorer) Score(ctx context.Context, p *models.Payment) (int, error) {
	rules := []func(context.Context, *models.Payment) int{
		s.velocity,
		s.amountAnomaly,
		s.emailDomain,
		s.unusualHour,
	}

	score := 0
	for _, rule := range rules {
		score += rule(ctx, p)
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}

func (s *Scorer) velocity(ctx context.Context, p *models.Payment) int {
	count, err := s.history.CountRecentByPhone(ctx, p.CustomerPhone, s.cfg.VelocityWindow)
	if err != nil {
		s.logger.Error("velocity lookup failed", zap.Error(err), zap.String("payment_id", p.ID))
		return 0
	}
	if count >= s.cfg.VelocityTrigger {
		return s.cfg.VelocityPoints
	}
	return 0
}

func (s *Scorer) amountAnomaly(ctx context.Context, p *models.Payment) int {
	avg, err := s.history.AverageAmountByEmail(ctx, p.CustomerEmail)
	if err != nil {
		s.logger.Error("average amount lookup failed", zap.Error(err), zap.String("payment_id", p.ID))
		return 0
	}
	if avg > 0 && float64(p.Amount) >= s.cfg.AmountMultiplier*avg {
		return s.cfg.AmountPoints
	}
	return 0
}

func (s *Scorer) emailDomain(_ context.Context, p *models.Payment) int {
	at := strings.LastIndex(p.CustomerEmail, "@")
	if at < 0 {
		return 0
	}
	domain := strings.ToLower(p.CustomerEmail[at+1:])
	if suspiciousDomains[domain] {
		return s.cfg.EmailPoints
	}
	return 0
}

func (s *Scorer) unusualHour(_ context.Context, _ *models.Payment) int {
	hour := s.now().Hour()
	if hour >= s.cfg.NightStartHour && hour <= s.cfg.NightEndHour {
		return s.cfg.NightPoints
	}
	return 0
}
