package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Domenick1991/flightbooking/api"
	"github.com/Domenick1991/flightbooking/config"
)

const healthProbeInterval = 5 * time.Second

type Servers struct {
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
}

// Run starts the gRPC health server and the HTTP API and blocks until ctx is
// cancelled or a server fails.
func Run(ctx context.Context, cfg *config.Config, app *App, admin api.OutboxAdmin) error {
	s := newServers(cfg, app, admin)
	log := app.Log

	errCh := make(chan error, 2)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	go func() { errCh <- s.grpcServer.Serve(lis) }()
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go probeHealth(ctx, s.health, app.Storage.Ping, log)

	log.Info("servers started", zap.String("http", cfg.HTTP.Address), zap.String("grpc", cfg.GRPC.Address))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func newServers(cfg *config.Config, app *App, admin api.OutboxAdmin) *Servers {
	grpcSrv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, hs)

	return &Servers{
		grpcServer: grpcSrv,
		health:     hs,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           NewRouter(cfg.HTTP, app, admin),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// NewRouter mounts the versioned API, metrics, health and docs.
func NewRouter(cfg config.HTTPConfig, app *App, admin api.OutboxAdmin) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(app.Log))

	v1 := router.Group("/v1")
	flightsGroup := v1.Group("/flights")
	api.NewFlightHandler(app.Flights).Register(flightsGroup)
	api.NewHoldHandler(app.Holds).Register(flightsGroup)
	api.NewBookingHandler(app.Bookings).Register(v1.Group("/bookings"))
	api.NewPaymentHandler(app.Bookings).Register(v1.Group("/payments"))
	if admin != nil {
		api.NewOutboxHandler(admin).Register(v1.Group("/admin/outbox"))
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) {
		if err := app.Storage.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.SwaggerDir != "" {
		router.StaticFile("/docs/swagger.json", filepath.Join(cfg.SwaggerDir, "swagger.json"))
		router.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/docs/swagger.json"))))
	}
	return router
}

// probeHealth flips the gRPC health status with the store's reachability.
func probeHealth(ctx context.Context, hs *health.Server, ping func(context.Context) error, log *zap.Logger) {
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()

	current := healthpb.HealthCheckResponse_NOT_SERVING
	for {
		next := healthpb.HealthCheckResponse_SERVING
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		if err := ping(pingCtx); err != nil {
			next = healthpb.HealthCheckResponse_NOT_SERVING
			if ctx.Err() == nil {
				log.Warn("store ping failed", zap.Error(err))
			}
		}
		cancel()
		if next != current {
			hs.SetServingStatus("", next)
			current = next
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
			log.Error("request failed", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}
