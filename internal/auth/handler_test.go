package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatepass/backend/internal/models"
)

type fakeUserStore struct {
	byEmail map[string]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byEmail: make(map[string]*models.User)}
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserStore) Create(_ context.Context, email, passwordHash, fullName string, role models.Role) (*models.User, error) {
	u := &models.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  passwordHash,
		FullName:  fullName,
		Role:      role,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.byEmail[email] = u
	return u, nil
}

func (f *fakeUserStore) AddEventAdmin(_ context.Context, eventID, userID uuid.UUID) (*models.EventAdmin, error) {
	return &models.EventAdmin{EventID: eventID, UserID: userID}, nil
}

func registerRouter(t *testing.T) (*gin.Engine, *JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwt := NewJWTService("test-secret", 1)
	handler := NewHandler(newFakeUserStore(), jwt, nil)

	router := gin.New()
	router.POST("/auth/register", handler.Register)
	return router, jwt
}

func postRegister(t *testing.T, router *gin.Engine, body map[string]string, token string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterRoleElevation(t *testing.T) {
	t.Run("attendee self-registers", func(t *testing.T) {
		router, _ := registerRouter(t)
		rec := postRegister(t, router, map[string]string{
			"email": "fan@example.com", "password": "secret1", "full_name": "Fan",
		}, "")
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("staff role without a token is forbidden", func(t *testing.T) {
		router, _ := registerRouter(t)
		rec := postRegister(t, router, map[string]string{
			"email": "door@example.com", "password": "secret1", "full_name": "Door", "role": "staff",
		}, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin role with an attendee token is forbidden", func(t *testing.T) {
		router, jwt := registerRouter(t)
		token, err := jwt.Generate(uuid.New(), "fan@example.com", string(models.RoleAttendee))
		require.NoError(t, err)

		rec := postRegister(t, router, map[string]string{
			"email": "sneak@example.com", "password": "secret1", "full_name": "Sneak", "role": "admin",
		}, token)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin token mints a staff account", func(t *testing.T) {
		router, jwt := registerRouter(t)
		token, err := jwt.Generate(uuid.New(), "boss@example.com", string(models.RoleAdmin))
		require.NoError(t, err)

		rec := postRegister(t, router, map[string]string{
			"email": "door@example.com", "password": "secret1", "full_name": "Door", "role": "staff",
		}, token)
		require.Equal(t, http.StatusCreated, rec.Code)

		var body struct {
			Data TokenResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, models.RoleStaff, body.Data.User.Role)
		assert.NotEmpty(t, body.Data.Token)
	})

	t.Run("admin token mints an admin account", func(t *testing.T) {
		router, jwt := registerRouter(t)
		token, err := jwt.Generate(uuid.New(), "boss@example.com", string(models.RoleAdmin))
		require.NoError(t, err)

		rec := postRegister(t, router, map[string]string{
			"email": "second@example.com", "password": "secret1", "full_name": "Second", "role": "admin",
		}, token)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}
