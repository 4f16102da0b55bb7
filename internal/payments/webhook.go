package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatepass/backend/internal/bookings"
	"github.com/gatepass/backend/internal/models"
	"github.com/gatepass/backend/pkg/response"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Gateway-Signature"

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// webhookPayload is the gateway's settlement callback.
type webhookPayload struct {
	BookingID        uuid.UUID `json:"booking_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	Outcome          string    `json:"outcome"`
	Reason           string    `json:"reason"`
}

// WebhookHandler receives payment settlement callbacks from the gateway
// and drives the booking state machine. Delivery is at-least-once, so
// everything downstream of this handler tolerates replays.
type WebhookHandler struct {
	svc    *bookings.Service
	secret []byte
	logger *zap.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(svc *bookings.Service, webhookSecret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{svc: svc, secret: []byte(webhookSecret), logger: logger}
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if len(h.secret) == 0 {
		// unsigned mode only makes sense with the offline gateway
		return true
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Handle processes POST /webhooks/payment.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	if !h.verifySignature(body, c.GetHeader(SignatureHeader)) {
		h.logger.Warn("webhook signature mismatch", zap.String("remote", c.ClientIP()))
		response.Unauthorized(c, "invalid signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		response.BadRequest(c, "invalid payload: "+err.Error())
		return
	}
	if payload.BookingID == uuid.Nil {
		response.BadRequest(c, "missing booking_id")
		return
	}

	switch payload.Outcome {
	case outcomeSuccess:
		b, err := h.svc.Confirm(c.Request.Context(), payload.BookingID, payload.GatewayPaymentID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		response.OK(c, gin.H{"status": b.Status})
	case outcomeFailure:
		reason := payload.Reason
		if reason == "" {
			reason = "payment failed at gateway"
		}
		if err := h.svc.MarkFailed(c.Request.Context(), payload.BookingID, reason); err != nil {
			h.writeError(c, err)
			return
		}
		response.OK(c, gin.H{"status": "acknowledged"})
	default:
		response.BadRequest(c, "unknown outcome")
	}
}

func (h *WebhookHandler) writeError(c *gin.Context, err error) {
	var conflict *bookings.IntegrityConflictError
	var state *bookings.StateError
	switch {
	case errors.Is(err, models.ErrBookingNotFound):
		response.NotFound(c, "booking not found")
	case errors.Is(err, models.ErrInvalidInput):
		response.BadRequest(c, "missing gateway_payment_id")
	case errors.As(err, &conflict):
		response.Conflict(c, "INTEGRITY_CONFLICT", "payment does not match confirmed booking", gin.H{
			"recorded_payment_id":  conflict.RecordedPaymentID,
			"attempted_payment_id": conflict.AttemptedPaymentID,
		})
	case errors.As(err, &state):
		response.Conflict(c, "INTEGRITY_CONFLICT", "booking is "+string(state.Status), gin.H{"status": state.Status})
	default:
		h.logger.Error("webhook processing failed", zap.Error(err))
		response.Internal(c, "failed to process webhook")
	}
}
