package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatepass/backend/internal/models"
	"github.com/gatepass/backend/pkg/response"
	"github.com/gatepass/backend/pkg/utils"
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role"` // optional, defaults to attendee
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Store is the persistence surface the auth handlers need.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, email, passwordHash, fullName string, role models.Role) (*models.User, error)
	AddEventAdmin(ctx context.Context, eventID, userID uuid.UUID) (*models.EventAdmin, error)
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	store  Store
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(store Store, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, jwt: jwt, logger: logger}
}

// callerIsAdmin reports whether the request carries a valid admin token.
// Registration is a public route, so the bearer token is optional and
// checked here instead of by the JWT middleware.
func (h *Handler) callerIsAdmin(c *gin.Context) bool {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return false
	}
	claims, err := h.jwt.Validate(parts[1])
	if err != nil {
		return false
	}
	return claims.Role == string(models.RoleAdmin)
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	role := models.RoleAttendee
	switch req.Role {
	case "", "attendee":
	case "staff", "admin":
		// Privileged roles are minted by an existing admin, never
		// self-assigned. The first admin account is seeded out of band.
		if !h.callerIsAdmin(c) {
			response.Forbidden(c, "only an admin may create staff or admin accounts")
			return
		}
		role = models.Role(req.Role)
	default:
		response.BadRequest(c, "invalid role")
		return
	}

	if _, err := h.store.GetByEmail(c.Request.Context(), req.Email); err == nil {
		response.BadRequest(c, "email already registered")
		return
	} else if !errors.Is(err, models.ErrUserNotFound) {
		response.Internal(c, "failed to look up email")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.store.Create(c.Request.Context(), req.Email, hash, req.FullName, role)
	if err != nil {
		h.logger.Error("create user failed", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.Created(c, TokenResponse{Token: token, User: user.Public()})
}

// GrantAdminRequest is the body for POST /events/:id/admins.
type GrantAdminRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// GrantEventAdmin handles POST /events/:id/admins (admin only). Pairs a
// staff user with an event so the guard lets them confirm and scan for it.
func (h *Handler) GrantEventAdmin(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req GrantAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if _, err := h.store.GetByID(c.Request.Context(), req.UserID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		response.Internal(c, "failed to look up user")
		return
	}

	grant, err := h.store.AddEventAdmin(c.Request.Context(), eventID, req.UserID)
	if err != nil {
		h.logger.Error("grant event admin failed", zap.Error(err))
		response.Internal(c, "failed to grant event admin")
		return
	}
	response.Created(c, grant)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.store.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user.Public()})
}
