package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/mutualia/mutualia-backend/internal/config"
	"github.com/mutualia/mutualia-backend/internal/events"
	"github.com/mutualia/mutualia-backend/internal/handler"
	"github.com/mutualia/mutualia-backend/internal/metrics"
	"github.com/mutualia/mutualia-backend/internal/middleware"
	"github.com/mutualia/mutualia-backend/internal/repository/postgres"
	"github.com/mutualia/mutualia-backend/internal/repository/storage"
	"github.com/mutualia/mutualia-backend/internal/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.RunMigrations {
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		log.Info().Msg("Database migrations applied")
	}

	// Connect to database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	// Verify database connection
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	// Metrics
	meterProvider, metricsHandler, err := metrics.Init()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}
	recorder, err := metrics.NewRecorder(meterProvider)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create metrics recorder")
	}

	// Event publisher
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.LoanTopic)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Kafka publisher")
			}
		}()
		publisher = kafkaPublisher
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.LoanTopic).Msg("Kafka event publishing enabled")
	} else {
		log.Info().Msg("Kafka brokers not configured, events disabled")
	}

	// Initialize repositories
	tenantRepo := postgres.NewTenantRepository(pool)
	productRepo := postgres.NewCreditProductRepository(pool)
	associateRepo := postgres.NewAssociateRepository(pool)
	loanRepo := postgres.NewLoanRepository(pool)
	installmentRepo := postgres.NewLoanInstallmentRepository(pool)
	transactor := postgres.NewTransactor(pool)

	// Initialize services
	tenantService := service.NewTenantService(tenantRepo)
	productService := service.NewCreditProductService(productRepo)
	associateService := service.NewAssociateService(associateRepo)

	loanService := service.NewLoanService(transactor, loanRepo, installmentRepo, productRepo, associateRepo)
	loanService.SetEventPublisher(publisher)
	loanService.SetMetrics(recorder)

	importService := service.NewImportService(loanService, associateRepo, productRepo, cfg.Import.MaxRows)
	importService.SetEventPublisher(publisher)
	importService.SetMetrics(recorder)

	// Import archive (optional)
	if cfg.S3.Enabled {
		archive, err := storage.NewS3ImportArchive(context.Background(), cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize import archive")
		}
		importService.SetArchive(archive)
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Import archive enabled")
	} else {
		log.Warn().Msg("Import archive disabled - uploaded files will not be kept")
	}

	// Initialize auth middleware
	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth0Domain, cfg.Auth0Audience, tenantRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth middleware")
	}

	importLimiter := middleware.NewRateLimiterWithConfig(cfg.Import.RatePerMinute, cfg.Import.Burst)
	defer importLimiter.Stop()

	// Initialize handlers
	handlers := handler.Handlers{
		Auth:          handler.NewAuthHandler(tenantService),
		CreditProduct: handler.NewCreditProductHandler(productService),
		Associate:     handler.NewAssociateHandler(associateService),
		Loan:          handler.NewLoanHandler(loanService, importService),
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = !cfg.IsProduction()

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Security headers middleware (helmet-like)
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metricsHandler))

	// Register API routes
	handler.RegisterRoutes(e, authMiddleware, importLimiter, handlers)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	if err := meterProvider.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down meter provider")
	}

	log.Info().Msg("Server exited")
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			event := log.Info()
			if res.Status >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
