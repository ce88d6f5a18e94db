package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-portal/internal/middleware"
	"github.com/noah-isme/sma-adp-portal/internal/models"
	"github.com/noah-isme/sma-adp-portal/internal/service"
	"github.com/noah-isme/sma-adp-portal/pkg/config"
	"github.com/noah-isme/sma-adp-portal/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-adp-portal/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-adp-portal/pkg/middleware/requestid"
)

type sessionGate interface {
	Current() (models.Session, bool)
}

// RouterDeps bundles what the agent router serves.
type RouterDeps struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *service.MetricsService
	Sessions    sessionGate
	Session     *SessionHandler
	Enrollments *EnrollmentHandler
	Admin       *AdminHandler
	Ops         *MetricsHandler
}

// NewRouter builds the agent's gin engine.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", deps.Ops.Health)
	r.GET("/ready", deps.Ops.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", deps.Ops.Prometheus)
	}
	r.GET("/metrics/snapshot", deps.Ops.Snapshot)

	session := r.Group("/session")
	session.POST("/login", deps.Session.Login)
	session.POST("/logout", deps.Session.Logout)
	session.GET("", deps.Session.Current)
	session.GET("/me", middleware.RequireSession(deps.Sessions), deps.Session.Me)

	enrollments := r.Group("/enrollments", middleware.RequireSession(deps.Sessions))
	enrollments.GET("", deps.Enrollments.List)
	enrollments.GET("/summary", deps.Enrollments.Summary)
	enrollments.GET("/conflicts", deps.Enrollments.Conflicts)
	enrollments.GET("/courses/:courseId", deps.Enrollments.Status)
	enrollments.POST("/courses/:courseId", deps.Enrollments.Enroll)
	enrollments.DELETE("/courses/:courseId", deps.Enrollments.Withdraw)

	admin := r.Group("/admin", middleware.RequireSession(deps.Sessions), middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/enrollments", deps.Admin.ListEnrollments)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
