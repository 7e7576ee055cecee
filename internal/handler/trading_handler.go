package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TradingService is the portfolio and order API used by TradingHandler.
type TradingService interface {
	CreatePortfolio(ctx context.Context, userID int, req *model.PortfolioCreate) (*model.Portfolio, error)
	ListPortfolios(ctx context.Context, userID int) ([]model.Portfolio, error)
	GetPortfolio(ctx context.Context, userID, id int) (*model.Portfolio, error)
	RefreshPortfolio(ctx context.Context, userID, id int) (*model.Portfolio, error)
	PlaceOrder(ctx context.Context, userID int, req *model.OrderRequest) (*model.Trade, error)
	ListOrders(ctx context.Context, userID int, statuses []model.TradeStatus, p utils.PaginationParams) ([]model.Trade, int, error)
	GetOrder(ctx context.Context, userID, tradeID int) (*model.Trade, error)
	ClosePosition(ctx context.Context, userID, tradeID int) (*model.Trade, error)
	CancelOrder(ctx context.Context, userID, tradeID int) (*model.Trade, error)
	Holdings(ctx context.Context, userID int) ([]model.Position, error)
	Positions(ctx context.Context, userID int) ([]model.Position, error)
}

var knownStatuses = map[model.TradeStatus]bool{
	model.TradeStatusPending:   true,
	model.TradeStatusExecuted:  true,
	model.TradeStatusCancelled: true,
	model.TradeStatusFailed:    true,
}

// TradingHandler handles portfolio, order and broker account requests
type TradingHandler struct {
	tradingService TradingService
	logger         *zap.Logger
}

// NewTradingHandler creates a new trading handler
func NewTradingHandler(tradingService TradingService, logger *zap.Logger) *TradingHandler {
	return &TradingHandler{
		tradingService: tradingService,
		logger:         logger,
	}
}

// CreatePortfolio creates a portfolio
// POST /api/v1/portfolios
func (h *TradingHandler) CreatePortfolio(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req model.PortfolioCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.tradingService.CreatePortfolio(c.Request.Context(), userID, &req)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to create portfolio")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": p})
}

// ListPortfolios lists the user's portfolios
// GET /api/v1/portfolios
func (h *TradingHandler) ListPortfolios(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	portfolios, err := h.tradingService.ListPortfolios(c.Request.Context(), userID)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to fetch portfolios")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": portfolios})
}

// GetPortfolio returns one portfolio
// GET /api/v1/portfolios/:id
func (h *TradingHandler) GetPortfolio(c *gin.Context) {
	h.portfolioAction(c, h.tradingService.GetPortfolio, "Failed to fetch portfolio")
}

// RefreshPortfolio revalues a portfolio from the broker account
// POST /api/v1/portfolios/:id/refresh
func (h *TradingHandler) RefreshPortfolio(c *gin.Context) {
	h.portfolioAction(c, h.tradingService.RefreshPortfolio, "Failed to refresh portfolio")
}

func (h *TradingHandler) portfolioAction(c *gin.Context, fn func(context.Context, int, int) (*model.Portfolio, error), failure string) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	p, err := fn(c.Request.Context(), userID, id)
	if err != nil {
		sendServiceError(c, h.logger, err, failure)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": p})
}

// PlaceOrder places an order with the broker
// POST /api/v1/orders
func (h *TradingHandler) PlaceOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req model.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.Exchange = strings.ToUpper(req.Exchange)

	trade, err := h.tradingService.PlaceOrder(c.Request.Context(), userID, &req)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to place order")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": trade})
}

// ListOrders lists the user's trades, filtered by a comma separated status list
// GET /api/v1/orders?status=PENDING,EXECUTED
func (h *TradingHandler) ListOrders(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var statuses []model.TradeStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := model.TradeStatus(strings.ToUpper(strings.TrimSpace(s)))
			if !knownStatuses[status] {
				utils.SendErrorResponse(c, http.StatusBadRequest, "unknown status "+s)
				return
			}
			statuses = append(statuses, status)
		}
	}

	params := utils.ParsePaginationParams(c, 20, 100)
	trades, total, err := h.tradingService.ListOrders(c.Request.Context(), userID, statuses, params)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to fetch orders")
		return
	}
	utils.SendPaginatedResponse(c, http.StatusOK, trades, total, params)
}

// GetOrder returns one trade
// GET /api/v1/orders/:id
func (h *TradingHandler) GetOrder(c *gin.Context) {
	h.orderAction(c, h.tradingService.GetOrder, http.StatusOK, "Failed to fetch order")
}

// ClosePosition closes an executed trade at the last traded price
// POST /api/v1/orders/:id/close
func (h *TradingHandler) ClosePosition(c *gin.Context) {
	h.orderAction(c, h.tradingService.ClosePosition, http.StatusCreated, "Failed to close position")
}

// CancelOrder cancels a pending order
// DELETE /api/v1/orders/:id
func (h *TradingHandler) CancelOrder(c *gin.Context) {
	h.orderAction(c, h.tradingService.CancelOrder, http.StatusOK, "Failed to cancel order")
}

func (h *TradingHandler) orderAction(c *gin.Context, fn func(context.Context, int, int) (*model.Trade, error), status int, failure string) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	trade, err := fn(c.Request.Context(), userID, id)
	if err != nil {
		sendServiceError(c, h.logger, err, failure)
		return
	}
	c.JSON(status, gin.H{"data": trade})
}

// Holdings returns the broker holdings of the user
// GET /api/v1/broker/holdings
func (h *TradingHandler) Holdings(c *gin.Context) {
	h.brokerAction(c, h.tradingService.Holdings, "Failed to fetch holdings")
}

// Positions returns the broker positions of the user
// GET /api/v1/broker/positions
func (h *TradingHandler) Positions(c *gin.Context) {
	h.brokerAction(c, h.tradingService.Positions, "Failed to fetch positions")
}

func (h *TradingHandler) brokerAction(c *gin.Context, fn func(context.Context, int) ([]model.Position, error), failure string) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	positions, err := fn(c.Request.Context(), userID)
	if err != nil {
		sendServiceError(c, h.logger, err, failure)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": positions})
}
