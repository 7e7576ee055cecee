package handler

import (
	"context"
	"net/http"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StrategyService is the strategy API used by StrategyHandler.
type StrategyService interface {
	Create(ctx context.Context, userID int, req *model.StrategyCreate) (*model.Strategy, error)
	Get(ctx context.Context, userID, id int) (*model.Strategy, error)
	List(ctx context.Context, userID int, p utils.PaginationParams) ([]model.Strategy, int, error)
	Update(ctx context.Context, userID, id int, req *model.StrategyUpdate) (*model.Strategy, error)
	Delete(ctx context.Context, userID, id int) error
}

// StrategyHandler handles strategy-related HTTP requests
type StrategyHandler struct {
	strategyService StrategyService
	logger          *zap.Logger
}

// NewStrategyHandler creates a new strategy handler
func NewStrategyHandler(strategyService StrategyService, logger *zap.Logger) *StrategyHandler {
	return &StrategyHandler{
		strategyService: strategyService,
		logger:          logger,
	}
}

// ListStrategies handles listing strategies for a user
// GET /api/v1/strategies
func (h *StrategyHandler) ListStrategies(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	params := utils.ParsePaginationParams(c, 10, 100)
	strategies, total, err := h.strategyService.List(c.Request.Context(), userID, params)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to fetch strategies")
		return
	}
	utils.SendPaginatedResponse(c, http.StatusOK, strategies, total, params)
}

// CreateStrategy handles creating a new strategy
// POST /api/v1/strategies
func (h *StrategyHandler) CreateStrategy(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req model.StrategyCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	strategy, err := h.strategyService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to create strategy")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": strategy})
}

// GetStrategy handles retrieving a strategy by ID
// GET /api/v1/strategies/:id
func (h *StrategyHandler) GetStrategy(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	strategy, err := h.strategyService.Get(c.Request.Context(), userID, id)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to fetch strategy")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": strategy})
}

// UpdateStrategy handles updating a strategy
// PUT /api/v1/strategies/:id
func (h *StrategyHandler) UpdateStrategy(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req model.StrategyUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	strategy, err := h.strategyService.Update(c.Request.Context(), userID, id, &req)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to update strategy")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": strategy})
}

// DeleteStrategy handles deleting a strategy
// DELETE /api/v1/strategies/:id
func (h *StrategyHandler) DeleteStrategy(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.strategyService.Delete(c.Request.Context(), userID, id); err != nil {
		sendServiceError(c, h.logger, err, "Failed to delete strategy")
		return
	}
	c.Status(http.StatusNoContent)
}
