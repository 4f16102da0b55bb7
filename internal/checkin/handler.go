package checkin

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatepass/backend/internal/middleware"
	"github.com/gatepass/backend/internal/models"
	"github.com/gatepass/backend/pkg/response"
)

// VerifyRequest is the body for POST /checkin: the booking ID read from
// the ticket's QR code plus the event the scanner is working.
type VerifyRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
	EventID   uuid.UUID `json:"event_id" binding:"required"`
}

// Handler handles check-in HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a check-in handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Verify handles POST /checkin.
func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	scannerID, _ := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	v, err := h.svc.Verify(c.Request.Context(), scannerID, req.BookingID, req.EventID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, v)
}

// ListByEvent handles GET /events/:id/checkins.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	viewerID, _ := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	list, err := h.svc.ListByEvent(c.Request.Context(), viewerID, eventID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, list)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var already *AlreadyVerifiedError
	var unpaid *NotConfirmedError
	switch {
	case errors.Is(err, models.ErrBookingNotFound):
		response.NotFound(c, "booking not found")
	case errors.Is(err, models.ErrUnauthorized):
		response.Forbidden(c, "not authorized to scan for this event")
	case errors.As(err, &unpaid):
		response.Conflict(c, "NOT_CONFIRMED", "booking is not confirmed", gin.H{"status": unpaid.Status})
	case errors.As(err, &already):
		response.Conflict(c, "ALREADY_VERIFIED", "ticket already verified", gin.H{
			"scanner_id":  already.ScannerID,
			"verified_at": already.VerifiedAt,
		})
	default:
		h.logger.Error("check-in failed", zap.Error(err))
		response.Internal(c, "failed to process check-in")
	}
}
