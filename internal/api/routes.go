package api

import (
	"crypto/rsa"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	internalapi "loyalty-hub/internal/api/internal"
	"loyalty-hub/internal/api/middleware"
	v1 "loyalty-hub/internal/api/v1"
	"loyalty-hub/internal/service"
	"loyalty-hub/internal/sse"
	systemlog "loyalty-hub/pkg/logger"
)

// Services are the ledger operations exposed over HTTP. Nil entries leave
// their routes unmounted.
type Services struct {
	Points    *service.PointsService
	Referrals *service.ReferralService
	Cashback  *service.CashbackService
	Promos    *service.PromoCodeService
	Orders    *service.OrderService
	Audit     *service.AuditService
}

type RouterConfig struct {
	PublicKey     *rsa.PublicKey
	InternalToken string
	AllowOrigins  []string

	// PromoRateLimit bounds promo validate/redeem calls per user per minute.
	PromoRateLimit int
	// RateCounter shares the promo budget across replicas; nil keeps it local.
	RateCounter middleware.SharedCounter

	Store   v1.StorePinger
	Hub     *sse.SSEHub
	Logs    *systemlog.RecentLogs
	Metrics http.Handler
	Logger  *zap.Logger
}

func NewRouter(cfg RouterConfig, services Services) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if len(cfg.AllowOrigins) > 0 {
		router.Use(buildCORSMiddleware(cfg.AllowOrigins))
	}
	router.Use(middleware.RequestLogger(cfg.Logger))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.GET("/api/v1/health", healthHandler)

	internal := router.Group("/internal", middleware.InternalTokenAuth(cfg.InternalToken))
	if cfg.Metrics != nil {
		internal.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	if services.Orders != nil {
		internalapi.RegisterEventRoutes(internal, services.Orders, cfg.Logger)
	}

	apiV1 := router.Group("/api/v1")
	public := apiV1.Group("")
	user := apiV1.Group("", middleware.JWTAuth(cfg.PublicKey), middleware.MaintenanceMode())
	admin := apiV1.Group("/admin", middleware.JWTAuth(cfg.PublicKey), middleware.RequireRole("admin"))

	promoLimiter := middleware.RateLimit("promo", middleware.RateLimitConfig{
		Limit:  cfg.PromoRateLimit,
		Window: time.Minute,
		Shared: cfg.RateCounter,
		Logger: cfg.Logger,
	})

	v1.RegisterPointsRoutes(user, admin, services.Points)
	v1.RegisterReferralRoutes(public, user, admin, services.Referrals)
	v1.RegisterCashbackRoutes(user, admin, services.Cashback)
	v1.RegisterPromoCodeRoutes(user, admin, services.Promos, promoLimiter)
	v1.RegisterAuditRoutes(admin, services.Audit)
	v1.RegisterSystemRoutes(public, admin, cfg.Store, cfg.Logs, cfg.Logger)
	if cfg.Hub != nil {
		v1.RegisterSSERoutes(user, cfg.Hub)
	}

	return router
}

func buildCORSMiddleware(allowOrigins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Last-Event-ID", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Type", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
