package events

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatepass/backend/internal/middleware"
	"github.com/gatepass/backend/internal/models"
	"github.com/gatepass/backend/pkg/response"
)

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Name        string    `json:"name" binding:"required"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	StartsAt    time.Time `json:"starts_at" binding:"required"`
	Capacity    int       `json:"capacity" binding:"required,gte=0"`
	PriceCents  int64     `json:"price_cents" binding:"gte=0"`
	IsPublished bool      `json:"is_published"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Create handles POST /events (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, _ := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	e := &models.Event{
		Name:        req.Name,
		Description: req.Description,
		Venue:       req.Venue,
		StartsAt:    req.StartsAt,
		Capacity:    req.Capacity,
		PriceCents:  req.PriceCents,
		IsPublished: req.IsPublished,
		CreatedBy:   userID,
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, e)
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context(), true)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /events/:id, including remaining capacity.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrEventNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, gin.H{
		"event":     e,
		"remaining": e.Remaining(),
	})
}
