package discounts

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatepass/backend/internal/auth"
	"github.com/gatepass/backend/internal/middleware"
	"github.com/gatepass/backend/internal/models"
	"github.com/gatepass/backend/pkg/response"
)

// CreateRequest is the body for POST /events/:id/discounts.
type CreateRequest struct {
	Code         string     `json:"code" binding:"required"`
	DiscountType string     `json:"discount_type" binding:"required,oneof=percentage fixed"`
	Value        int64      `json:"value" binding:"required,gt=0"`
	MaxUses      *int       `json:"max_uses" binding:"omitempty,gt=0"`
	ValidUntil   *time.Time `json:"valid_until"`
}

// Handler handles discount HTTP endpoints.
type Handler struct {
	repo   *Repository
	guard  *auth.Guard
	logger *zap.Logger
}

// NewHandler creates a discounts handler.
func NewHandler(repo *Repository, guard *auth.Guard, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, guard: guard, logger: logger}
}

func (h *Handler) authorize(c *gin.Context, eventID uuid.UUID) bool {
	userID, _ := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ok, err := h.guard.IsAuthorized(c.Request.Context(), userID, eventID)
	if err != nil {
		h.logger.Error("authorization check failed", zap.Error(err))
		response.Internal(c, "authorization check failed")
		return false
	}
	if !ok {
		response.Forbidden(c, "not an admin for this event")
		return false
	}
	return true
}

// Create handles POST /events/:id/discounts.
func (h *Handler) Create(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	if !h.authorize(c, eventID) {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.DiscountType == models.DiscountPercentage && req.Value > 100 {
		response.BadRequest(c, "percentage value must not exceed 100")
		return
	}

	d := &models.Discount{
		EventID:      eventID,
		Code:         req.Code,
		DiscountType: req.DiscountType,
		Value:        req.Value,
		MaxUses:      req.MaxUses,
		ValidUntil:   req.ValidUntil,
		IsActive:     true,
	}
	if err := h.repo.Create(c.Request.Context(), d); err != nil {
		h.logger.Error("create discount failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to create discount")
		return
	}
	response.Created(c, d)
}

// List handles GET /events/:id/discounts.
func (h *Handler) List(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	if !h.authorize(c, eventID) {
		return
	}
	list, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list discounts failed", zap.Error(err))
		response.Internal(c, "failed to list discounts")
		return
	}
	response.OK(c, list)
}
