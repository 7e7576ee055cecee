package handler

import (
	"context"
	"net/http"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthService is the account API used by AuthHandler.
type AuthService interface {
	Register(ctx context.Context, req *model.UserCreate) (*model.TokenResponse, error)
	Login(ctx context.Context, req *model.UserLogin) (*model.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error)
	GetUser(ctx context.Context, id int) (*model.User, error)
	UpdateUser(ctx context.Context, id int, req *model.UserUpdate) (*model.User, error)
	SetBrokerCredentials(ctx context.Context, id int, creds *model.BrokerCredentials) error
}

// AuthHandler handles authentication and profile requests
type AuthHandler struct {
	authService AuthService
	logger      *zap.Logger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Register handles user registration
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.UserCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to register user")
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Login handles user login
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.UserLogin
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to log in")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh handles token refresh
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to refresh token")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the current user
// GET /api/v1/users/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), userID)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to fetch user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

// UpdateMe updates the current user
// PUT /api/v1/users/me
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req model.UserUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.authService.UpdateUser(c.Request.Context(), userID, &req)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to update user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

// SetBroker stores the Kite Connect credentials of the current user
// PUT /api/v1/users/me/broker
func (h *AuthHandler) SetBroker(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req model.BrokerCredentials
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authService.SetBrokerCredentials(c.Request.Context(), userID, &req); err != nil {
		sendServiceError(c, h.logger, err, "Failed to store broker credentials")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Broker credentials updated"})
}
