package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatepass/backend/config"
	"github.com/gatepass/backend/internal/bookings"
	"github.com/gatepass/backend/internal/models"
)

// orderRequest is the body sent to the gateway's order endpoint.
type orderRequest struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
	Notes     struct {
		BookingID string `json:"booking_id"`
		EventID   string `json:"event_id"`
	} `json:"notes"`
}

// orderResponse is the gateway's reply.
type orderResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HTTPGateway creates payment orders against an external gateway API.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPGateway creates a gateway client.
func NewHTTPGateway(cfg config.GatewayConfig, logger *zap.Logger) *HTTPGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPGateway{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// CreateOrder registers a payment order for the booking's amount and
// returns the gateway's order ID.
func (g *HTTPGateway) CreateOrder(ctx context.Context, b *models.Booking) (string, error) {
	req := orderRequest{
		Amount:    b.AmountCents,
		Currency:  "USD",
		Reference: b.ID.String(),
	}
	req.Notes.BookingID = b.ID.String()
	req.Notes.EventID = b.EventID.String()

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Error("gateway order rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return "", fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var order orderResponse
	if err := json.Unmarshal(respBody, &order); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}
	if order.ID == "" {
		return "", fmt.Errorf("gateway response missing order id")
	}
	return order.ID, nil
}

// OfflineGateway generates order IDs locally. Used when no gateway is
// configured (development, tests); settlement then happens through the
// staff confirmation endpoint.
type OfflineGateway struct{}

// CreateOrder returns a locally generated order ID.
func (OfflineGateway) CreateOrder(_ context.Context, _ *models.Booking) (string, error) {
	return "offline_" + uuid.NewString(), nil
}

// New picks the gateway implementation for the configuration: HTTP when a
// base URL is set, offline otherwise.
func New(cfg config.GatewayConfig, logger *zap.Logger) bookings.Gateway {
	if cfg.BaseURL == "" {
		logger.Warn("no payment gateway configured, using offline order ids")
		return OfflineGateway{}
	}
	return NewHTTPGateway(cfg, logger)
}
