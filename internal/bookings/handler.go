package bookings

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatepass/backend/internal/discounts"
	"github.com/gatepass/backend/internal/events"
	"github.com/gatepass/backend/internal/middleware"
	"github.com/gatepass/backend/internal/models"
	"github.com/gatepass/backend/pkg/qr"
	"github.com/gatepass/backend/pkg/response"
)

// CreateRequest is the body for POST /bookings.
type CreateRequest struct {
	EventID      uuid.UUID `json:"event_id" binding:"required"`
	TicketCount  int       `json:"ticket_count" binding:"required,gte=1"`
	DiscountCode string    `json:"discount_code"`
}

// ConfirmRequest is the body for POST /bookings/:id/confirm.
type ConfirmRequest struct {
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
}

// Handler handles booking HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a bookings handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /bookings. An optional Idempotency-Key header makes
// retries of the same request return the original booking.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, _ := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	b, err := h.svc.Create(c.Request.Context(), CreateInput{
		EventID:        req.EventID,
		UserID:         userID,
		TicketCount:    req.TicketCount,
		DiscountCode:   req.DiscountCode,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(c, err, "failed to create booking")
		return
	}
	response.Created(c, b)
}

// Get handles GET /bookings/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking id")
		return
	}
	userID, _ := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	b, err := h.svc.Get(c.Request.Context(), userID, id)
	if err != nil {
		h.writeError(c, err, "failed to load booking")
		return
	}
	response.OK(c, b)
}

// ListMine handles GET /bookings.
func (h *Handler) ListMine(c *gin.Context) {
	userID, _ := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.svc.ListMine(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err, "failed to list bookings")
		return
	}
	response.OK(c, list)
}

// QR handles GET /bookings/:id/qr, serving the entry ticket as a PNG. Only
// confirmed bookings have a ticket.
func (h *Handler) QR(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking id")
		return
	}
	userID, _ := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	b, err := h.svc.Get(c.Request.Context(), userID, id)
	if err != nil {
		h.writeError(c, err, "failed to load booking")
		return
	}
	if b.Status != models.BookingConfirmed {
		response.Conflict(c, "NOT_CONFIRMED", "booking has no ticket yet", gin.H{"status": b.Status})
		return
	}
	png, err := qr.Generate(b.ID.String(), 256)
	if err != nil {
		h.logger.Error("qr generation failed", zap.String("booking_id", b.ID.String()), zap.Error(err))
		response.Internal(c, "failed to generate ticket")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Cancel handles POST /bookings/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking id")
		return
	}
	userID, _ := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	b, err := h.svc.Cancel(c.Request.Context(), id, userID)
	if err != nil {
		h.writeError(c, err, "failed to cancel booking")
		return
	}
	response.OK(c, b)
}

// AdminConfirm handles POST /bookings/:id/confirm, the manual settlement
// path for event staff.
func (h *Handler) AdminConfirm(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking id")
		return
	}
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	staffID, _ := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	b, err := h.svc.AdminConfirm(c.Request.Context(), staffID, id, req.GatewayPaymentID)
	if err != nil {
		h.writeError(c, err, "failed to confirm booking")
		return
	}
	response.OK(c, b)
}

func (h *Handler) writeError(c *gin.Context, err error, internalMsg string) {
	var capErr *events.CapacityError
	var conflict *IntegrityConflictError
	var state *StateError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		response.BadRequest(c, "invalid request")
	case errors.Is(err, models.ErrEventNotFound):
		response.NotFound(c, "event not found")
	case errors.Is(err, models.ErrBookingNotFound):
		response.NotFound(c, "booking not found")
	case errors.Is(err, models.ErrUnauthorized):
		response.Forbidden(c, "not allowed for this booking")
	case errors.As(err, &capErr):
		response.Conflict(c, "CAPACITY_EXCEEDED", "not enough tickets left", gin.H{"remaining": capErr.Remaining})
	case errors.Is(err, discounts.ErrNotFound):
		response.Unprocessable(c, "DISCOUNT_NOT_FOUND", "discount code not found")
	case errors.Is(err, discounts.ErrInactive):
		response.Unprocessable(c, "DISCOUNT_INACTIVE", "discount code is inactive")
	case errors.Is(err, discounts.ErrExpired):
		response.Unprocessable(c, "DISCOUNT_EXPIRED", "discount code has expired")
	case errors.Is(err, discounts.ErrExhausted):
		response.Unprocessable(c, "DISCOUNT_EXHAUSTED", "discount code usage limit reached")
	case errors.As(err, &conflict):
		response.Conflict(c, "INTEGRITY_CONFLICT", "payment does not match confirmed booking", gin.H{
			"recorded_payment_id":  conflict.RecordedPaymentID,
			"attempted_payment_id": conflict.AttemptedPaymentID,
		})
	case errors.As(err, &state):
		response.Conflict(c, "INTEGRITY_CONFLICT", "booking is "+string(state.Status), gin.H{"status": state.Status})
	default:
		h.logger.Error(internalMsg, zap.Error(err))
		response.Internal(c, internalMsg)
	}
}
