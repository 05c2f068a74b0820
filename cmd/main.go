package main

import (
	"net/http"

	"inventory-service/internal/alert"
	"inventory-service/internal/analytics"
	"inventory-service/internal/handler"
	"inventory-service/internal/ledger"
	mid "inventory-service/internal/middleware"
	"inventory-service/internal/model"
	"inventory-service/internal/predictor"
	"inventory-service/internal/stock"
	"inventory-service/internal/worker"
	"inventory-service/pkg/config"
	"inventory-service/pkg/database"
	"inventory-service/pkg/forecast"
	"inventory-service/pkg/logger"
	"inventory-service/prometheus"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load .env file; environments with real env vars set work without one.
	_ = godotenv.Load()

	appConfig, err := config.Load("inventory-service")
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	if err := logger.InitLogger(appConfig); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting inventory-service",
		zap.String("environment", appConfig.Server.Env),
		zap.String("port", appConfig.Server.Port))

	prometheus.InitMetrics(appConfig)
	log.Info("Prometheus metrics initialized",
		zap.String("metrics_prefix", appConfig.Metrics.Prefix))

	db, err := database.InitDB(&appConfig.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	if err := database.MigrateModels(
		&model.Product{},
		&model.LedgerEntry{},
		&model.Alert{},
		&model.Prediction{},
	); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	forecastClient := forecast.NewClient(
		appConfig.Forecast.URL,
		appConfig.Forecast.Timeout,
		appConfig.Forecast.HealthTTL,
		log.Named("forecast"),
	)

	ledgerStore := ledger.NewStore(db, log.Named("ledger"))
	selector := predictor.NewSelector(db, ledgerStore, forecastClient, log.Named("predictor"))

	retrainer := worker.NewRetrainer(
		appConfig.Retrain.Workers,
		appConfig.Retrain.QueueSize,
		selector.Retrain,
		log.Named("retrainer"),
	)
	defer retrainer.Stop()

	stockService := stock.NewService(db, ledgerStore, retrainer, log.Named("stock"))
	alertEngine := alert.NewEngine(db, ledgerStore, log.Named("alerts"))
	aggregator := analytics.NewAggregator(db, ledgerStore, stockService, log.Named("analytics"))

	productHandler := handler.NewProductHandler(db)
	inventoryHandler := handler.NewInventoryHandler(stockService, ledgerStore)
	alertHandler := handler.NewAlertHandler(alertEngine)
	predictionHandler := handler.NewPredictionHandler(selector)
	analyticsHandler := handler.NewAnalyticsHandler(aggregator)

	e := echo.New()

	e.Use(middleware.Recover())
	e.Use(mid.RequestIDMiddleware)
	e.Use(mid.MetricsMiddleware)

	// Metrics endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	productAPI := e.Group("/api/products")
	productAPI.GET("", productHandler.List)
	productAPI.GET("/:id", productHandler.Get)
	productAPI.POST("", productHandler.Create)
	productAPI.PUT("/:id", productHandler.Update)
	productAPI.DELETE("/:id", productHandler.Deactivate)

	inventoryAPI := e.Group("/api/inventory")
	inventoryAPI.POST("/transaction", inventoryHandler.RecordTransaction)
	inventoryAPI.GET("/current-stock", inventoryHandler.CurrentStock)
	inventoryAPI.GET("/product/:productId", inventoryHandler.ProductHistory)
	inventoryAPI.GET("/low-stock", inventoryHandler.LowStock)
	inventoryAPI.GET("/history", inventoryHandler.History)

	alertAPI := e.Group("/api/alerts")
	alertAPI.POST("/generate", alertHandler.Generate)
	alertAPI.GET("", alertHandler.List)
	alertAPI.GET("/active", alertHandler.Active)
	alertAPI.GET("/statistics", alertHandler.Statistics)
	alertAPI.GET("/product/:productId", alertHandler.ByProduct)
	alertAPI.PATCH("/:id", alertHandler.UpdateStatus)
	alertAPI.PATCH("/:id/dismiss", alertHandler.Dismiss)

	predictionAPI := e.Group("/api/predictions")
	predictionAPI.POST("/generate", predictionHandler.GenerateAll)
	predictionAPI.POST("/product/:productId", predictionHandler.GenerateForProduct)
	predictionAPI.GET("", predictionHandler.List)
	predictionAPI.GET("/latest", predictionHandler.Latest)
	predictionAPI.GET("/trends", predictionHandler.Trends)
	predictionAPI.GET("/model/:productId", predictionHandler.ModelInfo)
	predictionAPI.POST("/train-all-models", predictionHandler.TrainAll)

	analyticsAPI := e.Group("/api/analytics")
	analyticsAPI.GET("/dashboard", analyticsHandler.Dashboard)
	analyticsAPI.GET("/inventory-value", analyticsHandler.InventoryValue)
	analyticsAPI.GET("/sales-report", analyticsHandler.SalesReport)
	analyticsAPI.GET("/top-products", analyticsHandler.TopProducts)
	analyticsAPI.GET("/system-health", analyticsHandler.SystemHealth)

	port := appConfig.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Server error", zap.Error(err))
	}
}
