package reservation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/samuell-k/booking-center-sub004/internal/models"
)

// Client looks up seat holds in the reservation service. The payment engine
// only reads reservations; it never creates or extends them.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// GetReservation fetches the hold for a token. An unknown token returns
// (nil, nil); the caller decides whether that invalidates the payment.
func (c *Client) GetReservation(ctx context.Context, token string) (*models.Reservation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/reservations/"+token, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reservation service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reservation service returned HTTP %d", resp.StatusCode)
	}

	var reservation models.Reservation
	if err := json.NewDecoder(resp.Body).Decode(&reservation); err != nil {
		return nil, fmt.Errorf("invalid reservation response: %w", err)
	}

	return &reservation, nil
}
