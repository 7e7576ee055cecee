package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/barcache"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/client"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/config"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/events"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/handler"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/indicator"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/middleware"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/repository"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/service"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/storage"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "config/config.yaml"), "path to the config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := createLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Connect to database
	db, err := connectToDB(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient := connectToRedis(cfg.Redis, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Kafka.Enabled {
		producer := events.NewProducer(cfg.Kafka.BrokerList(), "algotrading-api", logger)
		defer producer.Close()
		publisher = producer
	}

	reports, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize report storage", zap.Error(err))
	}

	// Initialize clients
	kite := client.NewKiteClient(cfg.Kite, logger)
	var bars service.BarProvider = kite
	if cfg.MarketData.BarCachePath != "" {
		cache, err := barcache.Open(cfg.MarketData.BarCachePath, kite, logger)
		if err != nil {
			logger.Fatal("Failed to open bar cache", zap.Error(err))
		}
		defer cache.Close()
		bars = cache
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db, logger)
	strategyRepo := repository.NewStrategyRepository(db, logger)
	backtestRepo := repository.NewBacktestRepository(db, logger)
	portfolioRepo := repository.NewPortfolioRepository(db, logger)
	tradeRepo := repository.NewTradeRepository(db, logger)

	serviceSession := client.Session{APIKey: cfg.Kite.APIKey, AccessToken: cfg.Kite.AccessToken}
	sessions := service.NewBrokerSessions(userRepo, serviceSession)

	// Initialize services
	authService := service.NewAuthService(userRepo, cfg.Auth, logger)
	strategyService := service.NewStrategyService(strategyRepo, logger)
	backtestService := service.NewBacktestService(
		backtestRepo,
		strategyRepo,
		bars,
		sessions,
		reports,
		publisher,
		cfg.Kafka.Topic("backtestEvents"),
		cfg.Backtest,
		logger,
	)
	tradingService := service.NewTradingService(
		kite,
		portfolioRepo,
		tradeRepo,
		sessions,
		publisher,
		cfg.Kafka.Topic("orderEvents"),
		cfg.MarketData.Exchange,
		logger,
	)
	marketService := service.NewMarketService(bars, sessions, indicator.DefaultParams(), logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := stream.NewHub(kite, serviceSession, cfg.MarketData, logger)
	go hub.Run(ctx)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService, logger)
	strategyHandler := handler.NewStrategyHandler(strategyService, logger)
	backtestHandler := handler.NewBacktestHandler(backtestService, logger)
	tradingHandler := handler.NewTradingHandler(tradingService, logger)
	marketHandler := handler.NewMarketHandler(marketService, hub, authService, cfg.Backtest.Interval, logger)

	// Set up HTTP server with Gin
	router := setupRouter(
		cfg,
		authHandler,
		strategyHandler,
		backtestHandler,
		tradingHandler,
		marketHandler,
		authService,
		redisClient,
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// stops the price stream and closes its sockets
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Waiting for running backtests")
	backtestService.Wait()

	logger.Info("Server exited properly")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func createLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	// Parse log level
	var zapLevel zap.AtomicLevel
	switch cfg.Level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
	}

	zapConfig := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}

func connectToDB(dbConfig config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", dbConfig.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	return db, nil
}

// connectToRedis returns nil when Redis is disabled or unreachable; rate
// limiting then falls back to process-local limiters and caching is skipped.
func connectToRedis(cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	if !cfg.Enabled {
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable, continuing without it", zap.Error(err), zap.String("addr", cfg.Addr))
		redisClient.Close()
		return nil
	}
	return redisClient
}

func setupRouter(
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	strategyHandler *handler.StrategyHandler,
	backtestHandler *handler.BacktestHandler,
	tradingHandler *handler.TradingHandler,
	marketHandler *handler.MarketHandler,
	tokens middleware.TokenValidator,
	redisClient *redis.Client,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()

	// Use middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Live prices; authenticates with the token query parameter
	router.GET("/ws", marketHandler.Stream)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.Use(middleware.RedisRateLimit(redisClient, cfg.RateLimit, logger))
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(tokens, logger))
		// after auth so callers are limited per user rather than per address
		protected.Use(middleware.RedisRateLimit(redisClient, cfg.RateLimit, logger))

		users := protected.Group("/users/me")
		{
			users.GET("", authHandler.Me)
			users.PUT("", authHandler.UpdateMe)
			users.PUT("/broker", authHandler.SetBroker)
		}

		strategies := protected.Group("/strategies")
		{
			strategies.GET("", strategyHandler.ListStrategies)
			strategies.POST("", strategyHandler.CreateStrategy)
			strategies.GET("/:id", strategyHandler.GetStrategy)
			strategies.PUT("/:id", strategyHandler.UpdateStrategy)
			strategies.DELETE("/:id", strategyHandler.DeleteStrategy)
			strategies.POST("/:id/backtest", backtestHandler.StartBacktest)
		}

		backtests := protected.Group("/backtests")
		{
			backtests.GET("", backtestHandler.ListBacktests)
			backtests.POST("/sma-crossover", backtestHandler.RunCrossover)
			backtests.GET("/:id", backtestHandler.GetBacktest)
			backtests.GET("/:id/report", backtestHandler.GetReport)
		}

		portfolios := protected.Group("/portfolios")
		{
			portfolios.GET("", tradingHandler.ListPortfolios)
			portfolios.POST("", tradingHandler.CreatePortfolio)
			portfolios.GET("/:id", tradingHandler.GetPortfolio)
			portfolios.POST("/:id/refresh", tradingHandler.RefreshPortfolio)
		}

		orders := protected.Group("/orders")
		{
			orders.GET("", tradingHandler.ListOrders)
			orders.POST("", tradingHandler.PlaceOrder)
			orders.GET("/:id", tradingHandler.GetOrder)
			orders.POST("/:id/close", tradingHandler.ClosePosition)
			orders.DELETE("/:id", tradingHandler.CancelOrder)
		}

		broker := protected.Group("/broker")
		{
			broker.GET("/holdings", tradingHandler.Holdings)
			broker.GET("/positions", tradingHandler.Positions)
		}

		market := protected.Group("/market")
		{
			market.GET("/:token/indicators",
				middleware.RedisCache(redisClient, cfg.Cache, "market", logger),
				marketHandler.Indicators)
		}
	}

	return router
}
