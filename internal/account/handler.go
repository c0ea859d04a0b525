package account

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sportscouncil/tournament-gateway/internal/auth"
	"github.com/sportscouncil/tournament-gateway/internal/middleware"
	"github.com/sportscouncil/tournament-gateway/internal/ratelimit"
	"go.uber.org/zap"
)

type LoginService interface {
	Login(ctx context.Context, username, password string) (*auth.IssuedToken, error)
}

// Store is the slice of the credential repository the admin endpoints use.
type Store interface {
	Create(ctx context.Context, rec *auth.CredentialRecord) error
	SetDisabled(ctx context.Context, username string, disabled bool) error
}

type Handler struct {
	login   LoginService
	store   Store
	hasher  auth.PasswordHasher
	limiter ratelimit.Limiter
	logger  *zap.Logger
}

func NewHandler(login LoginService, store Store, hasher auth.PasswordHasher, limiter ratelimit.Limiter, logger *zap.Logger) *Handler {
	if limiter == nil {
		limiter = ratelimit.Nop{}
	}
	return &Handler{login: login, store: store, hasher: hasher, limiter: limiter, logger: logger}
}

// LoginRequest accepts both OAuth2 password-form and JSON bodies.
type LoginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

type UpdateUserRequest struct {
	Disabled *bool `json:"disabled" binding:"required"`
}

type UserResponse struct {
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
	Disabled bool   `json:"disabled"`
}

// Login handles POST /token.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	ctx := c.Request.Context()
	key := "login:" + req.Username + "|" + c.ClientIP()
	allowed, err := h.limiter.Allow(ctx, key)
	if err != nil {
		h.logger.Warn("login rate limiter unavailable", zap.Error(err))
	} else if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts, try again later"})
		return
	}

	issued, err := h.login.Login(ctx, req.Username, req.Password)
	if err != nil {
		middleware.AbortWithAuthError(c, err)
		return
	}
	if err := h.limiter.Reset(ctx, key); err != nil {
		h.logger.Warn("failed to reset login limiter", zap.Error(err))
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: issued.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   issued.ExpiresAt.UTC(),
	})
}

// Me handles GET /api/user/me.
func (h *Handler) Me(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		middleware.Unauthorized(c)
		return
	}
	c.JSON(http.StatusOK, UserResponse{
		Username: identity.Username,
		Role:     string(identity.Role),
		IsAdmin:  identity.IsAdmin,
	})
}

// CreateUser handles POST /api/admin/users.
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}
	role := auth.RoleUser
	if req.Role != "" {
		r, err := auth.ParseRole(req.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		role = r
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password cannot be hashed"})
		return
	}

	err = h.store.Create(c.Request.Context(), &auth.CredentialRecord{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	})
	switch {
	case errors.Is(err, auth.ErrCredentialExists):
		c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
		return
	case err != nil:
		h.logger.Error("create user failed", zap.String("username", username), zap.Error(err))
		middleware.AbortWithAuthError(c, auth.ErrStoreUnavailable)
		return
	}

	h.logger.Info("user created", zap.String("username", username), zap.String("role", string(role)), zap.String("by", c.GetString("userID")))
	c.JSON(http.StatusCreated, UserResponse{Username: username, Role: string(role), IsAdmin: role == auth.RoleAdmin})
}

// UpdateUser handles PATCH /api/admin/users/:username.
func (h *Handler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "disabled is required"})
		return
	}
	username := c.Param("username")
	if *req.Disabled && username == c.GetString("userID") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot disable your own account"})
		return
	}

	err := h.store.SetDisabled(c.Request.Context(), username, *req.Disabled)
	switch {
	case errors.Is(err, auth.ErrCredentialNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	case err != nil:
		h.logger.Error("update user failed", zap.String("username", username), zap.Error(err))
		middleware.AbortWithAuthError(c, auth.ErrStoreUnavailable)
		return
	}

	h.logger.Info("user updated", zap.String("username", username), zap.Bool("disabled", *req.Disabled), zap.String("by", c.GetString("userID")))
	c.JSON(http.StatusOK, UserResponse{Username: username, Disabled: *req.Disabled})
}
