package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-payroll-review/internal/client"
	"github.com/pesio-ai/be-payroll-review/internal/config"
	"github.com/pesio-ai/be-payroll-review/internal/database"
	"github.com/pesio-ai/be-payroll-review/internal/handler"
	"github.com/pesio-ai/be-payroll-review/internal/logger"
	"github.com/pesio-ai/be-payroll-review/internal/middleware"
	"github.com/pesio-ai/be-payroll-review/internal/repository"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
	"github.com/pesio-ai/be-payroll-review/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Payroll Review Service")

	// Load the rule registry before touching the network: a bad registry is
	// a deployment error.
	ruleSet, err := rules.LoadRegistryFile(cfg.Rules.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Rules.Path).Msg("Failed to load rule registry")
	}
	log.Info().Str("path", cfg.Rules.Path).Int("rules", ruleSet.Len()).Msg("Rule registry loaded")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		DSN:         cfg.Database.DSN(),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize NATS (optional)
	nc, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log.Logger)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, notifications disabled")
	}
	var publisher client.Publisher
	if nc != nil {
		publisher = nc
		defer nc.Drain()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	}
	notifier := client.NewNotificationPublisher(publisher, cfg.NATS.SubjectPrefix, log.Logger)
	webhooks := client.NewWebhookClient(cfg.Webhooks)

	status := cfg.Webhooks.Status()
	log.Info().
		Bool("diff_webhook_configured", status.DiffConfigured).
		Bool("judgement_webhook_configured", status.JudgementConfigured).
		Msg("Webhook integrations")

	// Initialize repositories
	datasetRepo := repository.NewPayrollDatasetRepository(db)
	sessionRepo := repository.NewReviewSessionRepository(db)
	decisionRepo := repository.NewApprovalDecisionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	tierRepo := repository.NewOrganizationTierRepository(db, rules.Tier(cfg.Rules.DefaultTier))

	// Initialize services
	reviewService := service.NewReviewService(
		datasetRepo, sessionRepo, decisionRepo, auditRepo, tierRepo,
		notifier, webhooks, ruleSet, log,
	)
	approvalService := service.NewApprovalService(sessionRepo, decisionRepo, auditRepo, notifier, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(reviewService, approvalService, db, status, log)
	mux := http.NewServeMux()
	httpHandler.Routes(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcHandler := handler.NewGRPCHandler(reviewService, log.Logger)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLogging(log.Logger)))
	handler.RegisterReviewServiceServer(grpcServer, grpcHandler)
	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.ReviewServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer) // Enable reflection for debugging

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.GRPC.Port).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Reload the rule registry on SIGHUP; a bad file keeps the active one
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			set, err := rules.LoadRegistryFile(cfg.Rules.Path)
			if err == nil {
				err = reviewService.ReplaceRules(set)
			}
			if err != nil {
				log.Error().Err(err).Str("path", cfg.Rules.Path).Msg("Rule registry reload failed")
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}
