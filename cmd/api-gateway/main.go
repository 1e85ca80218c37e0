package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/agora-api/api/swagger"
	"github.com/noah-isme/agora-api/internal/handler"
	"github.com/noah-isme/agora-api/internal/middleware"
	"github.com/noah-isme/agora-api/internal/models"
	"github.com/noah-isme/agora-api/internal/repository"
	"github.com/noah-isme/agora-api/internal/service"
	"github.com/noah-isme/agora-api/pkg/cache"
	"github.com/noah-isme/agora-api/pkg/config"
	"github.com/noah-isme/agora-api/pkg/database"
	"github.com/noah-isme/agora-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/agora-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/agora-api/pkg/middleware/requestid"
)

// @title Agora Session API
// @version 1.0.0
// @description Session and token lifecycle management for the Agora community platform
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The limiter fails open without Redis, so the API stays up.
		logr.Sugar().Warnw("redis unavailable, rate limiting disabled", "error", err)
		rdb = nil
	}

	credentialRepo := repository.NewCredentialRepository(db)
	principalRepo := repository.NewPrincipalRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	validate := validator.New()
	issuer := service.NewTokenIssuer(cfg.JWT)
	authSvc := service.NewAuthService(credentialRepo, principalRepo, sessionRepo, auditRepo, issuer, validate, logr, cfg.Auth.SingleSession)
	sessionSvc := service.NewSessionService(sessionRepo, auditRepo, logr)
	principalSvc := service.NewPrincipalService(principalRepo, credentialRepo, sessionRepo, auditRepo, logr)
	metricsSvc := service.NewMetricsService()

	authHandler := handler.NewAuthHandler(authSvc, metricsSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	principalHandler := handler.NewPrincipalHandler(principalSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auth := r.Group("/auth")
	auth.Use(middleware.RateLimit(cfg.RateLimit, rdb, logr))
	{
		auth.POST("/:role/join", authHandler.Join)
		auth.POST("/:role/login", authHandler.Login)
		auth.POST("/:role/refresh", authHandler.Refresh)

		authed := auth.Group("")
		authed.Use(middleware.JWT(issuer))
		{
			authed.POST("/logout", authHandler.Logout)
			authed.GET("/me", authHandler.Me)
		}
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(issuer))
	api.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleAdminUser))
	{
		api.GET("/sessions", sessionHandler.List)
		api.POST("/sessions/:id/revoke", sessionHandler.Revoke)
		api.GET("/sessions/export",
			middleware.Audit(auditRepo, models.AuditActionSessionExport, "session"),
			sessionHandler.Export)
		api.GET("/audit-logs", sessionHandler.AuditLogs)
		api.GET("/principals", principalHandler.List)
		api.DELETE("/principals/:id", principalHandler.Deactivate)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
