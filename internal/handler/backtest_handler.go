package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BacktestService is the backtest API used by BacktestHandler.
type BacktestService interface {
	Start(ctx context.Context, userID, strategyID int, req *model.BacktestRequest) (*model.Backtest, error)
	Get(ctx context.Context, userID, id int) (*model.Backtest, error)
	List(ctx context.Context, userID int, strategyID *int, p utils.PaginationParams) ([]model.Backtest, int, error)
	Report(ctx context.Context, userID, id int) (io.ReadCloser, error)
	RunCrossover(ctx context.Context, userID int, req *model.CrossoverRequest) (*model.BacktestResult, error)
}

// BacktestHandler handles backtest-related HTTP requests
type BacktestHandler struct {
	backtestService BacktestService
	logger          *zap.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(backtestService BacktestService, logger *zap.Logger) *BacktestHandler {
	return &BacktestHandler{
		backtestService: backtestService,
		logger:          logger,
	}
}

// StartBacktest queues a backtest of a stored strategy
// POST /api/v1/strategies/:id/backtest
func (h *BacktestHandler) StartBacktest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	strategyID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req model.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	bt, err := h.backtestService.Start(c.Request.Context(), userID, strategyID, &req)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to start backtest")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"id":      bt.ID,
		"status":  bt.Status,
		"message": "Backtest started",
	})
}

// ListBacktests lists the user's backtests, optionally for one strategy
// GET /api/v1/backtests
func (h *BacktestHandler) ListBacktests(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var strategyID *int
	if raw := c.Query("strategy_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id < 1 {
			utils.SendErrorResponse(c, http.StatusBadRequest, "invalid strategy_id")
			return
		}
		strategyID = &id
	}

	params := utils.ParsePaginationParams(c, 10, 100)
	backtests, total, err := h.backtestService.List(c.Request.Context(), userID, strategyID, params)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to fetch backtests")
		return
	}
	utils.SendPaginatedResponse(c, http.StatusOK, backtests, total, params)
}

// GetBacktest returns one backtest with its results
// GET /api/v1/backtests/:id
func (h *BacktestHandler) GetBacktest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	bt, err := h.backtestService.Get(c.Request.Context(), userID, id)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to fetch backtest")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bt})
}

// GetReport streams the archived JSON report of a backtest
// GET /api/v1/backtests/:id/report
func (h *BacktestHandler) GetReport(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	rc, err := h.backtestService.Report(c.Request.Context(), userID, id)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to fetch backtest report")
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", "attachment; filename=backtest-"+strconv.Itoa(id)+".json")
	c.DataFromReader(http.StatusOK, -1, "application/json", rc, nil)
}

// RunCrossover runs a fast/slow SMA crossover synchronously
// POST /api/v1/backtests/sma-crossover
func (h *BacktestHandler) RunCrossover(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req model.CrossoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.backtestService.RunCrossover(c.Request.Context(), userID, &req)
	if err != nil {
		sendServiceError(c, h.logger, err, "Failed to run crossover backtest")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}
