package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hostpilot/internal/config"
	"hostpilot/internal/handlers"
	"hostpilot/internal/metrics"
	"hostpilot/internal/middleware"
	"hostpilot/internal/models"
	"hostpilot/internal/observability"
	"hostpilot/internal/services"
	"hostpilot/internal/store"
	"hostpilot/pkg/fireapi"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	// 读取配置文件（默认 ./config.yml）并初始化日志
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	// OpenTelemetry 初始化（可选）
	shutdownOTel, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	// 打开规则库
	db, err := openDatabase(cfg)
	if err != nil {
		appLogger.Fatalf("Failed to open rule database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}
	if err := db.AutoMigrate(&models.AutomationRule{}); err != nil {
		appLogger.Fatalf("Failed to migrate rule database: %v", err)
	}

	// 组装引擎
	ruleStore := store.NewRuleStore(db, appLogger)
	sampler := metrics.NewSystemSampler(cfg.Scheduler.SampleWindow)
	evaluator := services.NewTriggerEvaluator(sampler, appLogger)

	fireClient := fireapi.NewClient(&fireapi.Config{
		BaseURL:  cfg.Fire.BaseURL,
		APIKey:   cfg.Fire.APIKey,
		ServerID: cfg.Fire.ServerID,
		Timeout:  cfg.Fire.Timeout,
	}, appLogger)

	actionClient := &http.Client{
		Timeout:   cfg.Scheduler.ActionTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	dispatcher := services.NewActionDispatcher(
		actionClient,
		fireClient,
		services.NewSystemPower(appLogger),
		cfg.Webhook.DefaultURL,
		appLogger,
	)

	scheduler := services.NewScheduler(dispatcher, evaluator, appLogger,
		services.WithClock(services.RealClock()),
		services.WithPollInterval(cfg.Scheduler.PollInterval),
		services.WithActionTimeout(cfg.Scheduler.ActionTimeout),
	)
	service := services.NewAutomationService(ruleStore, scheduler, sampler, appLogger)

	hub := services.NewWebSocketHub(service, cfg.Scheduler.StatusInterval)
	scheduler.SetRunResultHandler(hub.BroadcastRunResult)

	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	go hub.Run(hubCtx)

	// 启动引擎：持久化规则装载失败视为致命错误
	if err := service.Start(context.Background()); err != nil {
		appLogger.Fatalf("Failed to start automation engine: %v", err)
	}

	// 初始化 Gin
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	if cfg.Security.CORS.Enabled {
		r.Use(corsMiddleware())
	}
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware("hostpilot"))
	}
	r.Use(middleware.RateLimitMiddleware(cfg))
	r.Use(middleware.APITokenMiddleware(cfg))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC(), "version": "v1.0.0"})
	})

	automationHandler := handlers.NewAutomationHandler(service, appLogger)
	handlers.RegisterAutomationRoutes(r.Group(""), automationHandler)
	handlers.RegisterWebSocketRoutes(r, handlers.NewWebSocketHandler(hub))

	// 启动服务器
	srv := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), Handler: r}
	go func() {
		appLogger.Infof("Starting hostpilot on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Errorf("Server forced to shutdown: %v", err)
	}
	service.Stop()
	cancelHub()
	appLogger.Info("hostpilot exited")
}

// openDatabase opens the configured rule database. sqlite is the default
// for the single-host deployment; postgres remains available for shared
// setups.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	switch cfg.Database.Driver {
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password,
			cfg.Database.Name, cfg.Database.Port, cfg.Database.SSLMode,
		)
		return gorm.Open(postgres.Open(dsn), gormCfg)
	default:
		return gorm.Open(sqlite.Open(cfg.Database.Path), gormCfg)
	}
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-API-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
