package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/middleware"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/stream"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// defaultLookback is the history returned when no from date is given.
const defaultLookback = 365 * 24 * time.Hour

// MarketService is the indicator API used by MarketHandler.
type MarketService interface {
	Indicators(ctx context.Context, userID int, token int64, interval string, from, to time.Time) ([]model.IndicatorPoint, error)
}

// MarketHandler serves historical indicators and the live stream
type MarketHandler struct {
	marketService MarketService
	hub           *stream.Hub
	tokens        middleware.TokenValidator
	upgrader      *websocket.Upgrader
	interval      string
	logger        *zap.Logger
}

// NewMarketHandler creates a new market data handler
func NewMarketHandler(marketService MarketService, hub *stream.Hub, tokens middleware.TokenValidator, interval string, logger *zap.Logger) *MarketHandler {
	if interval == "" {
		interval = "day"
	}
	return &MarketHandler{
		marketService: marketService,
		hub:           hub,
		tokens:        tokens,
		upgrader:      stream.Upgrader(),
		interval:      interval,
		logger:        logger,
	}
}

// Indicators returns bars with indicator readings for an instrument
// GET /api/v1/market/:token/indicators?interval=&from=&to=
func (h *MarketHandler) Indicators(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	token, err := strconv.ParseInt(c.Param("token"), 10, 64)
	if err != nil || token < 1 {
		utils.SendErrorResponse(c, http.StatusBadRequest, "invalid instrument token")
		return
	}

	to, err := utils.ParseDateQuery(c, "to", time.Now().UTC())
	if err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	from, err := utils.ParseDateQuery(c, "from", to.Add(-defaultLookback))
	if err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	points, err := h.marketService.Indicators(c.Request.Context(), userID, token, c.DefaultQuery("interval", h.interval), from, to)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to fetch market data")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": points})
}

// Stream upgrades the request to a WebSocket subscribed to live prices.
// Browsers cannot set headers on WebSocket requests, so the access token is
// read from the token query parameter.
// GET /ws?token=
func (h *MarketHandler) Stream(c *gin.Context) {
	claims, err := h.tokens.ValidateAccessToken(c.Query("token"))
	if err != nil {
		utils.SendErrorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	c.Set("userID", claims.UserID)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already answered the request
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err), zap.Int("user_id", claims.UserID))
		return
	}

	client := h.hub.Register(conn, claims.UserID)
	client.ReadLoop()
}
