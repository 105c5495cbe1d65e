package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/samuell-k/booking-center-sub004/internal/metrics"
	"github.com/samuell-k/booking-center-sub004/internal/models"
	"github.com/samuell-k/booking-center-sub004/internal/service"
	"github.com/samuell-k/booking-center-sub004/internal/signing"
)

// WebhookSignatureHeader carries the aggregator's HMAC over the raw body.
const WebhookSignatureHeader = "X-Callback-Signature"

type PaymentHandler struct {
	service       *service.PaymentService
	webhookSecret string
	logger        *zap.Logger
}

func NewPaymentHandler(svc *service.PaymentService, webhookSecret string, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:       svc,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := h.service.InitiatePayment(c.Request.Context(), &req)
	if err != nil {
		h.renderInitiateError(c, payment, err)
		return
	}

	c.JSON(http.StatusCreated, models.PaymentResponse{Payment: payment})
}

func (h *PaymentHandler) renderInitiateError(c *gin.Context, payment *models.Payment, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrFraudRejected):
		// Generic on purpose: never reveal which signal fired.
		c.JSON(http.StatusForbidden, gin.H{"error": "Payment rejected for security concerns"})
	case errors.Is(err, service.ErrInvalidReservation):
		c.JSON(http.StatusConflict, gin.H{"error": "Reservation is missing or expired"})
	case errors.Is(err, service.ErrProviderRejected):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   err.Error(),
			"payment": payment,
		})
	case errors.Is(err, service.ErrAllProvidersFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "All payment providers failed, please try again later",
			"payment": payment,
		})
	default:
		h.logger.Error("failed to create payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process payment"})
	}
}

// GetPayment handles GET /api/v1/payments/:id — the status fetch the client
// polls while the purchase modal shows "processing".
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.service.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		h.logger.Error("failed to load payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// RetryPayment handles POST /api/v1/payments/:id/retry
func (h *PaymentHandler) RetryPayment(c *gin.Context) {
	payment, err := h.service.RetryPayment(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"payment": payment})
	case errors.Is(err, service.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
	case errors.Is(err, service.ErrNotRetryable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRetryLimitExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "Payment retry limit exceeded"})
	case errors.Is(err, service.ErrProviderRejected), errors.Is(err, service.ErrAllProvidersFailed):
		h.renderInitiateError(c, payment, err)
	default:
		h.logger.Error("failed to retry payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retry payment"})
	}
}

// CancelPayment handles POST /api/v1/payments/:id/cancel
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	payment, err := h.service.CancelPayment(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"payment": payment})
	case errors.Is(err, service.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
	case errors.Is(err, service.ErrNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("failed to cancel payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel payment"})
	}
}

// GetAccountBalance handles GET /api/v1/account/balance
func (h *PaymentHandler) GetAccountBalance(c *gin.Context) {
	balance, err := h.service.GetAccountBalance(c.Request.Context())
	if err != nil {
		h.logger.Error("balance query failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Balance unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance.Balance})
}

// AggregatorWebhook handles POST /api/v1/webhooks/aggregator. The signature
// is verified over the raw body before anything is parsed or mutated.
func (h *PaymentHandler) AggregatorWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	signature := c.GetHeader(WebhookSignatureHeader)
	if !signing.VerifyWebhookSignature(body, signature, h.webhookSecret) {
		metrics.WebhookRejections.Inc()
		h.logger.Warn("webhook signature verification failed",
			zap.String("remote_addr", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	if _, err := h.service.ApplyWebhook(c.Request.Context(), &payload); err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown transaction"})
			return
		}
		h.logger.Error("failed to apply webhook", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply webhook"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
