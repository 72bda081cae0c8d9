package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jack/golang-shortlink-service/internal/config"
	"github.com/jack/golang-shortlink-service/internal/geoip"
	"github.com/jack/golang-shortlink-service/internal/handler"
	"github.com/jack/golang-shortlink-service/internal/middleware"
	"github.com/jack/golang-shortlink-service/internal/repository"
	"github.com/jack/golang-shortlink-service/internal/scheduler"
	"github.com/jack/golang-shortlink-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.App.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	postgresRepo, err := repository.NewPostgresRepository(&cfg.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer postgresRepo.Close()
	logger.Info("connected to postgres")

	redisRepo, err := repository.NewRedisRepository(&cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisRepo.Close()
	logger.Info("connected to redis")

	geoResolver := geoip.NewHTTPResolver(&cfg.GeoIP, logger)

	shortcodeService := service.NewShortcodeService(postgresRepo, redisRepo, geoResolver, cfg, logger)
	authService := service.NewAuthService(&cfg.Auth)

	sweeper := scheduler.NewExpirySweeper(postgresRepo, redisRepo, cfg.Sweep.Interval, logger)
	sweeper.Start()
	defer sweeper.Stop()

	h := handler.NewHandler(shortcodeService, authService, sweeper, map[string]handler.HealthChecker{
		"postgres": postgresRepo,
		"redis":    redisRepo,
	}, logger)

	rateLimiter := middleware.NewRateLimiter(redisRepo.Client(), &cfg.RateLimit, logger)

	router := gin.New()

	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered", zap.String("path", c.Request.URL.Path), zap.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
	}))
	router.Use(gin.Logger())

	// Behind Nginx/Proxy the client IP comes from forwarded headers; restrict
	// who may set them or ClientIP() can be spoofed.
	router.SetTrustedProxies([]string{"127.0.0.1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})

	router.GET("/health", h.Health)
	router.GET("/health/detailed", h.HealthDetailed)

	SetupSwagger(router, &cfg.Auth)

	api := router.Group("/api/v1")
	api.Use(rateLimiter.Middleware())
	{
		api.POST("/auth/token", h.IssueToken)

		protected := api.Group("")
		protected.Use(middleware.RequireAuth(authService))
		{
			protected.POST("/shorten", h.CreateShortcode)
			protected.GET("/stats/:code", h.GetStats)
			protected.DELETE("/shorten/:code", h.DeleteShortcode)
			protected.POST("/sweep", h.Sweep)
		}
	}

	router.GET("/:code", rateLimiter.Middleware(), h.Redirect)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited properly")
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
