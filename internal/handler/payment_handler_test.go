package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/samuell-k/booking-center-sub004/internal/aggregator"
	"github.com/samuell-k/booking-center-sub004/internal/models"
	"github.com/samuell-k/booking-center-sub004/internal/repository"
	"github.com/samuell-k/booking-center-sub004/internal/service"
	"github.com/samuell-k/booking-center-sub004/internal/signing"
)

const testWebhookSecret = "test-webhook-secret"

type acceptAllChannel struct{}

func (acceptAllChannel) Name() string { return "primary" }

func (acceptAllChannel) RequestPayment(_ context.Context, requestID, _ string, _ int64, _ string) (*aggregator.PaymentResult, error) {
	return &aggregator.PaymentResult{
		Success:           true,
		TransactionID:     requestID,
		ExternalReference: "AGG-777",
		ResponseCode:      "1000",
	}, nil
}

func (acceptAllChannel) GetTransactionStatus(context.Context, string, string) (*aggregator.StatusResult, error) {
	return &aggregator.StatusResult{Success: true, Status: "Pending", ResponseCode: "1100"}, nil
}

func (acceptAllChannel) GetAccountBalance(context.Context) (*aggregator.BalanceResult, error) {
	return &aggregator.BalanceResult{Success: true, Balance: 50000}, nil
}

type passScorer struct{}

func (passScorer) Score(context.Context, *models.Payment) (int, error) { return 5, nil }
func (passScorer) Threshold() int                                      { return 70 }

func newTestRouter(t *testing.T) (*gin.Engine, *repository.MemoryRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepository()
	failover := service.NewFailoverOrchestrator(zap.NewNop(), acceptAllChannel{})
	svc := service.NewPaymentService(repo, failover, passScorer{}, nil, nil, nil,
		zap.NewNop(), service.DefaultConfig())

	h := NewPaymentHandler(svc, testWebhookSecret, zap.NewNop())

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.POST("/payments", h.CreatePayment)
	v1.GET("/payments/:id", h.GetPayment)
	v1.POST("/payments/:id/retry", h.RetryPayment)
	v1.POST("/payments/:id/cancel", h.CancelPayment)
	v1.GET("/account/balance", h.GetAccountBalance)
	v1.POST("/webhooks/aggregator", h.AggregatorWebhook)

	return router, repo
}

func seedProcessing(t *testing.T, repo *repository.MemoryRepository) *models.Payment {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	payment := &models.Payment{
		ID:               "pay-1",
		PaymentReference: "BC20240115093000TESTREF1",
		Amount:           10000,
		Method:           models.MethodMTNMomo,
		CustomerPhone:    "0781234567",
		CustomerEmail:    "alice@example.com",
		IdempotencyKey:   "seed-1",
		Status:           models.PaymentStatusPending,
		TicketCount:      1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	_, created, err := repo.CreateIdempotent(ctx, payment)
	require.NoError(t, err)
	require.True(t, created)
	ok, err := repo.TransitionStatus(ctx, payment.ID, models.PaymentStatusPending, models.PaymentStatusProcessing, "")
	require.NoError(t, err)
	require.True(t, ok)
	return payment
}

func TestCreatePaymentEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(models.PaymentRequest{
		Amount:         10000,
		Method:         models.MethodMTNMomo,
		CustomerPhone:  "+250781234567",
		CustomerEmail:  "alice@example.com",
		IdempotencyKey: "k1",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp models.PaymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.PaymentStatusProcessing, resp.Payment.Status)
	assert.Equal(t, "AGG-777", resp.Payment.ExternalReference)
}

func TestGetPaymentNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookAppliesVerifiedCallback(t *testing.T) {
	router, repo := newTestRouter(t)
	payment := seedProcessing(t, repo)

	body, _ := json.Marshal(models.WebhookPayload{
		RequestTransactionID: payment.PaymentReference,
		TransactionID:        "AGG-777",
		ResponseCode:         "2001",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/aggregator", bytes.NewReader(body))
	req.Header.Set(WebhookSignatureHeader, signing.WebhookSignature(body, testWebhookSecret))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	stored, err := repo.GetByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	router, repo := newTestRouter(t)
	payment := seedProcessing(t, repo)

	body, _ := json.Marshal(models.WebhookPayload{
		RequestTransactionID: payment.PaymentReference,
		ResponseCode:         "2001",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/aggregator", bytes.NewReader(body))
	req.Header.Set(WebhookSignatureHeader, "0000deadbeef")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// No state mutation on an unverified payload.
	stored, err := repo.GetByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusProcessing, stored.Status)
}

func TestWebhookUnknownTransaction(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(models.WebhookPayload{
		RequestTransactionID: "BC-UNKNOWN",
		ResponseCode:         "2001",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/aggregator", bytes.NewReader(body))
	req.Header.Set(WebhookSignatureHeader, signing.WebhookSignature(body, testWebhookSecret))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAccountBalance(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/account/balance", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "50000")
}
