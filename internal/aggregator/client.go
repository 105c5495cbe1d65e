package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/samuell-k/booking-center-sub004/internal/metrics"
	"github.com/samuell-k/booking-center-sub004/internal/signing"
)

var (
	// ErrValidation marks a request rejected locally before any network
	// call (bad phone, amount below minimum).
	ErrValidation = errors.New("validation failed")
	// ErrTransport marks a network-level failure talking to the
	// aggregator: timeouts, connection errors, non-2xx or non-JSON
	// responses. Distinct from a business rejection the aggregator
	// reports inside a JSON body.
	ErrTransport = errors.New("aggregator transport failure")
)

// DefaultMinAmount is the aggregator's minimum charge in minor units.
const DefaultMinAmount = 100

// Config holds the per-channel aggregator account.
type Config struct {
	Name        string
	BaseURL     string
	Username    string
	AccountNo   string
	Secret      string
	CallbackURL string
	MinAmount   int64
	Timeout     time.Duration
}

// Client speaks the aggregator's form-encoded request protocol. It holds no
// mutable state beyond configuration and is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.MinAmount == 0 {
		cfg.MinAmount = DefaultMinAmount
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Name identifies the channel in logs and failover decisions.
func (c *Client) Name() string {
	return c.cfg.Name
}

type PaymentResult struct {
	Success           bool
	TransactionID     string
	ExternalReference string
	ResponseCode      string
	Message           string
}

type StatusResult struct {
	Success      bool
	Status       string
	ResponseCode string
	Message      string
}

type BalanceResult struct {
	Success bool
	Balance float64
}

// apiResponse is the aggregator's JSON envelope for all three calls.
type apiResponse struct {
	Status        string `json:"status"`
	ResponseCode  string `json:"responsecode"`
	TransactionID string `json:"transactionid"`
	Message       string `json:"message"`
	Balance       string `json:"balance"`
}

// RequestPayment initiates a charge against the subscriber's wallet. A
// successful return means the aggregator accepted the request, not that
// funds moved; reconciliation confirms the outcome later. A business-level
// rejection comes back as a result with Success=false and a nil error.
func (c *Client) RequestPayment(ctx context.Context, requestID, phone string, amount int64, description string) (*PaymentResult, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	if amount < c.cfg.MinAmount {
		return nil, fmt.Errorf("%w: amount %d is below the aggregator minimum of %d", ErrValidation, amount, c.cfg.MinAmount)
	}

	timestamp := signing.Timestamp(c.now())
	form := url.Values{
		"username":             {c.cfg.Username},
		"timestamp":            {timestamp},
		"amount":               {strconv.FormatInt(amount, 10)},
		"password":             {signing.Sign(c.cfg.Username, c.cfg.AccountNo, c.cfg.Secret, timestamp)},
		"mobilephone":          {normalized},
		"requesttransactionid": {requestID},
		"accountno":            {c.cfg.AccountNo},
		"callbackurl":          {c.cfg.CallbackURL},
	}

	resp, err := c.postForm(ctx, "/requestpayment", form)
	if err != nil {
		return nil, err
	}

	message, class := ClassifyResponseCode(resp.ResponseCode)
	if resp.Message != "" {
		message = resp.Message
	}

	result := &PaymentResult{
		TransactionID:     requestID,
		ExternalReference: resp.TransactionID,
		ResponseCode:      resp.ResponseCode,
		Message:           message,
	}

	switch class {
	case OutcomePending, OutcomeSuccess:
		result.Success = true
	default:
		c.logger.Warn("payment request rejected by aggregator",
			zap.String("channel", c.cfg.Name),
			zap.String("request_id", requestID),
			zap.String("response_code", resp.ResponseCode),
			zap.String("message", message))
	}

	return result, nil
}

// GetTransactionStatus queries the current state of a submitted payment.
// Side-effect free; safe to call repeatedly.
func (c *Client) GetTransactionStatus(ctx context.Context, requestID, externalID string) (*StatusResult, error) {
	timestamp := signing.Timestamp(c.now())
	form := url.Values{
		"username":             {c.cfg.Username},
		"timestamp":            {timestamp},
		"password":             {signing.Sign(c.cfg.Username, c.cfg.AccountNo, c.cfg.Secret, timestamp)},
		"requesttransactionid": {requestID},
		"transactionid":        {externalID},
	}

	resp, err := c.postForm(ctx, "/gettransactionstatus", form)
	if err != nil {
		return nil, err
	}

	message, class := ClassifyResponseCode(resp.ResponseCode)
	if resp.Message != "" {
		message = resp.Message
	}

	return &StatusResult{
		Success:      class == OutcomeSuccess || class == OutcomePending,
		Status:       resp.Status,
		ResponseCode: resp.ResponseCode,
		Message:      message,
	}, nil
}

// GetAccountBalance returns the merchant account balance at the aggregator.
func (c *Client) GetAccountBalance(ctx context.Context) (*BalanceResult, error) {
	timestamp := signing.Timestamp(c.now())
	form := url.Values{
		"username":  {c.cfg.Username},
		"timestamp": {timestamp},
		"accountno": {c.cfg.AccountNo},
		"password":  {signing.Sign(c.cfg.Username, c.cfg.AccountNo, c.cfg.Secret, timestamp)},
	}

	resp, err := c.postForm(ctx, "/getbalance", form)
	if err != nil {
		return nil, err
	}

	balance, err := strconv.ParseFloat(resp.Balance, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable balance %q", ErrTransport, resp.Balance)
	}

	return &BalanceResult{Success: true, Balance: balance}, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*apiResponse, error) {
	start := time.Now()
	defer func() {
		metrics.AggregatorRequestDuration.WithLabelValues(strings.TrimPrefix(path, "/")).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrTransport, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: aggregator returned HTTP %d", ErrTransport, httpResp.StatusCode)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: non-JSON response: %v", ErrTransport, err)
	}

	return &resp, nil
}
