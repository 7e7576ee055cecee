package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/backtest"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/client"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/indicator"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/middleware"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/service"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// sendServiceError maps service errors to HTTP responses. Unexpected errors
// are logged and answered with fallback.
func sendServiceError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		utils.SendErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAccessDenied), errors.Is(err, service.ErrInactiveUser):
		utils.SendErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrEmailTaken):
		utils.SendErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		utils.SendErrorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, backtest.ErrInvalidConfig), errors.Is(err, indicator.ErrInvalidParams):
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, backtest.ErrNoBars), errors.Is(err, backtest.ErrUnsortedBars):
		// the request was valid but the market data cannot be backtested
		utils.SendErrorResponse(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, client.ErrNoSession):
		utils.SendErrorResponse(c, http.StatusPreconditionFailed, err.Error())
	case errors.As(err, &apiErr):
		logger.Warn("Broker request failed", zap.Error(err))
		utils.SendErrorResponse(c, http.StatusBadGateway, apiErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		utils.SendErrorResponse(c, http.StatusGatewayTimeout, "upstream request timed out")
	default:
		logger.Error(fallback, zap.Error(err))
		utils.SendErrorResponse(c, http.StatusInternalServerError, fallback)
	}
}

// currentUser returns the authenticated user ID or answers 401.
func currentUser(c *gin.Context) (int, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		utils.SendErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
	}
	return userID, ok
}

// pathID parses a positive integer path parameter or answers 400.
func pathID(c *gin.Context, name string) (int, bool) {
	id, err := utils.ParseIDParam(c, name)
	if err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}
