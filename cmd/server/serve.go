package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-compliance-workbooks/internal/client"
	"github.com/pesio-ai/be-compliance-workbooks/internal/handler"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/config"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/database"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/middleware"
	"github.com/pesio-ai/be-compliance-workbooks/internal/repository"
	"github.com/pesio-ai/be-compliance-workbooks/internal/service"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("driver", cfg.Database.Driver).
		Msg("Starting Compliance Workbooks Service")

	stores, closeStores, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	// Initialize NATS publisher (optional: events are skipped when unset)
	var notifier service.Notifier
	nc, err := client.Connect(cfg.NATS.URL, cfg.Service.Name)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, notifications disabled")
	} else if nc != nil {
		defer func() { _ = nc.Drain() }()
		notifier = client.NewNotificationPublisher(nc, cfg.NATS.SubjectPrefix, log.Logger)
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	}

	// Initialize services
	wizardService := service.NewWizardService(stores, notifier, log)
	bundleService := service.NewBundleService(stores, notifier, log)

	// Setup HTTP routes and middleware
	httpHandler := handler.NewHTTPHandler(wizardService, bundleService, log)
	var h http.Handler = httpHandler.Routes()
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS(cfg.CORS.AllowedOrigins)(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Setup gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.IdentityInterceptor))
	handler.RegisterSubmissionServer(grpcServer, handler.NewGRPCHandler(bundleService, log.Logger))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.SubmissionServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to create gRPC listener: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()
	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("gRPC server failed: %w", err)
		}
	}()

	// Graceful shutdown
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("Server failed")
	}

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	stopGRPC(grpcServer, cfg.Server.ShutdownTimeout)

	log.Info().Msg("Server stopped")
	return runErr
}

// openStores picks the repository backend for the configured driver.
func openStores(ctx context.Context, cfg config.Config, log *logger.Logger) (service.Stores, func(), error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		return service.MemoryStores(repository.NewMemoryStore()), func() {}, nil
	}

	db, err := database.New(ctx, databaseConfig(cfg))
	if err != nil {
		return service.Stores{}, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	stores := service.Stores{
		Workbooks:   repository.NewWorkbookRepository(db),
		Submissions: repository.NewSubmissionRepository(db),
		Audit:       repository.NewAuditRepository(db),
	}
	return stores, db.Close, nil
}

// stopGRPC drains in-flight calls, forcing a stop once timeout passes.
func stopGRPC(s *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.Stop()
	}
}
