package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/dojo/internal/audit"
	auditdomain "github.com/smallbiznis/dojo/internal/audit/domain"
	"github.com/smallbiznis/dojo/internal/auth"
	"github.com/smallbiznis/dojo/internal/authorization"
	"github.com/smallbiznis/dojo/internal/checkout"
	checkoutdomain "github.com/smallbiznis/dojo/internal/checkout/domain"
	"github.com/smallbiznis/dojo/internal/config"
	"github.com/smallbiznis/dojo/internal/customer"
	"github.com/smallbiznis/dojo/internal/observability"
	obsmiddleware "github.com/smallbiznis/dojo/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/dojo/internal/observability/metrics"
	obstracing "github.com/smallbiznis/dojo/internal/observability/tracing"
	"github.com/smallbiznis/dojo/internal/payment"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
	"github.com/smallbiznis/dojo/internal/plan"
	"github.com/smallbiznis/dojo/internal/providers"
	"github.com/smallbiznis/dojo/internal/ratelimit"
	"github.com/smallbiznis/dojo/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/dojo/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	auth.Module,
	authorization.Module,
	audit.Module,
	plan.Module,
	providers.Module,
	ratelimit.Module,
	customer.Module,
	payment.Module,
	checkout.Module,
	subscription.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	verifier        *auth.Verifier
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	catalog         *plan.Catalog
	checkoutSvc     checkoutdomain.Service
	paymentSvc      paymentdomain.Service
	subscriptionSvc subscriptiondomain.Service
	obsMetrics      *obsmetrics.Metrics
	checkoutLimiter *ratelimit.CheckoutLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Verifier        *auth.Verifier
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	Catalog         *plan.Catalog
	CheckoutSvc     checkoutdomain.Service
	PaymentSvc      paymentdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
	CheckoutLimiter *ratelimit.CheckoutLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		verifier:        p.Verifier,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		catalog:         p.Catalog,
		checkoutSvc:     p.CheckoutSvc,
		paymentSvc:      p.PaymentSvc,
		subscriptionSvc: p.SubscriptionSvc,
		obsMetrics:      p.ObsMetrics,
		checkoutLimiter: p.CheckoutLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.BearerAuth())

	// -------- Plans --------
	api.GET("/plans", s.ListPlans)

	// -------- Checkout --------
	api.POST("/checkout/intents", s.CheckoutRateLimit(), s.CreateCheckoutIntent)

	// -------- Payments --------
	api.POST("/payments", s.SavePayment)
	api.GET("/payments", s.ListPayments)
	api.GET("/payments/:intentId", s.GetPayment)
	api.GET("/payments/:intentId/receipt", s.DownloadPaymentReceipt)

	// -------- Subscriptions --------
	api.GET("/subscriptions/manual", s.GetManualSubscription)
	api.GET("/subscriptions/effective", s.GetEffectivePlan)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.BearerAuth(), s.RequireAdmin())

	admin.POST("/subscriptions/manual", s.SetManualSubscription)
	admin.DELETE("/subscriptions/manual", s.ClearManualSubscription)
	admin.GET("/subscriptions/manual/:userId", s.GetManualSubscriptionOverride)

	admin.GET("/audit-logs", s.ListAuditLogs)
}
