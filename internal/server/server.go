package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/handlers"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/metrics"
	"github.com/hemidirasim/sahibparfum-sub001/internal/middleware"
)

// Server owns the HTTP router and listener of the checkout service.
type Server struct {
	config      *config.Config
	router      *gin.Engine
	httpServer  *http.Server
	handlers    *handlers.Handlers
	rateLimiter *middleware.RateLimiter
	verifier    middleware.TokenVerifier
	metrics     *metrics.Metrics
	logger      *logging.LoggerV2
}

// New builds the router. rateLimiter guards payment session creation and
// verifier protects the admin routes.
func New(
	cfg *config.Config,
	h *handlers.Handlers,
	rateLimiter *middleware.RateLimiter,
	verifier middleware.TokenVerifier,
	m *metrics.Metrics,
) *Server {
	if cfg.AppEnv == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(m.Middleware())
	router.Use(handlers.RenderErrors())

	s := &Server{
		config:      cfg,
		router:      router,
		handlers:    h,
		rateLimiter: rateLimiter,
		verifier:    verifier,
		metrics:     m,
		logger:      logging.NewLoggerV2("server"),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.Health)
	s.router.GET("/ready", s.handlers.Ready)
	s.router.GET("/live", s.handlers.Live)
	s.router.GET("/metrics", s.handlers.Metrics())

	api := s.router.Group("/api")
	{
		api.POST("/payment", s.rateLimiter.Middleware(), s.handlers.CreatePayment)
		api.POST("/payment/status", s.handlers.ReconcilePayment)
		api.GET("/payment/status/:orderId", s.handlers.PaymentStatus)

		api.POST("/orders/guest", s.handlers.CreateGuestOrder)
		api.GET("/orders/:id", s.handlers.GetOrder)

		api.GET("/products", s.handlers.ListProducts)
		api.GET("/products/:slug", s.handlers.GetProduct)
		api.GET("/categories", s.handlers.ListCategories)

		api.POST("/admin/login", s.handlers.AdminLogin)
	}

	admin := s.router.Group("/api/admin", middleware.RequireAdmin(s.verifier))
	{
		admin.GET("/orders", s.handlers.ListOrders)
		admin.PATCH("/orders/:id/status", s.handlers.UpdateOrderStatus)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", logging.Fields{"addr": s.httpServer.Addr})
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
