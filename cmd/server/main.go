package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/asakaida/attrgate/internal/handlers"
	"github.com/asakaida/attrgate/internal/infrastructure/cache"
	"github.com/asakaida/attrgate/internal/infrastructure/config"
	"github.com/asakaida/attrgate/internal/infrastructure/database"
	"github.com/asakaida/attrgate/internal/infrastructure/health"
	"github.com/asakaida/attrgate/internal/infrastructure/logging"
	"github.com/asakaida/attrgate/internal/infrastructure/metrics"
	"github.com/asakaida/attrgate/internal/repositories"
	"github.com/asakaida/attrgate/internal/repositories/dynamodb"
	"github.com/asakaida/attrgate/internal/repositories/postgres"
	"github.com/asakaida/attrgate/internal/services"
	"github.com/asakaida/attrgate/internal/services/guard"
	pkgcache "github.com/asakaida/attrgate/pkg/cache"
	"github.com/asakaida/attrgate/pkg/cache/memorycache"
	"github.com/asakaida/attrgate/pkg/cache/rediscache"
)

const (
	defaultEnv      = "dev"
	shutdownTimeout = 30 * time.Second
	metricsInterval = 10 * time.Second
	healthInterval  = 10 * time.Second
)

func main() {
	// Get environment from ENV variable or use default
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	if err := config.InitConfig(env); err != nil {
		logrus.Fatalf("Failed to initialize config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.Fatalf("Failed to create logger: %v", err)
	}

	// Connect to database
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	logger.WithFields(logrus.Fields{
		"user":     cfg.Database.User,
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Database,
	}).Info("Connected to database")

	// Initialize repositories
	definitionRepo := postgres.NewPostgresAttributeDefinitionRepository(pg.DB)
	customerRepo := postgres.NewPostgresCustomerRepository(pg.DB)

	productRepo, transactor, err := newProductStore(context.Background(), cfg, pg)
	if err != nil {
		logger.Fatalf("Failed to create product store: %v", err)
	}
	logger.WithField("backend", cfg.Store.Backend).Info("Product store ready")

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector()
	exporter := metrics.NewPrometheusExporter(collector, registry)

	// Initialize services
	guards, err := guard.NewEngine()
	if err != nil {
		logger.Fatalf("Failed to create guard engine: %v", err)
	}

	var schemas services.SchemaRegistry = services.NewSchemaService(definitionRepo, guards)
	schemaCache, err := newSchemaCache(context.Background(), cfg)
	if err != nil {
		logger.Fatalf("Failed to create schema cache: %v", err)
	}

	var invalidator *cache.SchemaInvalidator
	if schemaCache != nil {
		defer schemaCache.Close()

		cached := services.NewCachedSchemaRegistry(schemas, schemaCache, cfg.Cache.TTL(), logger)
		schemas = cached

		sized, _ := schemaCache.(interface{ Len() int })
		collector.SetCache(cached, sized)

		invalidator = cache.NewSchemaInvalidator(cached, cfg.Database.ConnectionString(), logger)
		if err := invalidator.Start(); err != nil {
			logger.Fatalf("Failed to start schema invalidator: %v", err)
		}
		logger.WithField("backend", cfg.Cache.Backend).Info("Schema cache enabled")
	}

	identity := services.NewIdentityService(customerRepo, cfg.Identity.MaxFailedLogins)
	gateway := services.NewGateway(
		services.NewCredentialGate(identity),
		schemas,
		productRepo,
		services.NewAttributeAccessor(transactor, guards),
		cfg.EntityType,
	)

	// HTTP server
	limiter := handlers.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
	stopCleanup := make(chan struct{})
	limiter.StartCleanup(time.Minute, stopCleanup)

	router := handlers.NewRouter(handlers.RouterConfig{
		ServicePath:         cfg.HTTP.ServicePath,
		Gateway:             handlers.NewGatewayHandler(gateway, cfg.HTTP.TrustForwardedProto, cfg.HTTP.MaxBodyBytes, exporter),
		Health:              pg,
		Logger:              logger,
		RateLimiter:         limiter,
		Collector:           collector,
		Exporter:            exporter,
		TrustForwardedProto: cfg.HTTP.TrustForwardedProto,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 3)
	go func() {
		logger.Infof("HTTP gateway listening on %s%s", httpServer.Addr, cfg.HTTP.ServicePath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Metrics server
	metricsServer := newMetricsServer(cfg.Server.MetricsPort, registry)
	go func() {
		logger.Infof("Metrics server listening on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	stopMetrics := make(chan struct{})
	go func() {
		ticker := time.NewTicker(metricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				exporter.Update()
			case <-stopMetrics:
				return
			}
		}
	}()

	// gRPC health server
	var healthServer *health.Server
	if cfg.Server.HealthGRPCPort > 0 {
		healthServer = health.NewServer(pg, healthInterval, logger,
			grpc.UnaryInterceptor(metrics.UnaryServerInterceptor(collector, exporter)))

		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.HealthGRPCPort))
		if err != nil {
			logger.Fatalf("Failed to listen: %v", err)
		}
		go func() {
			logger.Infof("gRPC health server listening on :%d", cfg.Server.HealthGRPCPort)
			if err := healthServer.Serve(listener); err != nil {
				serverErrors <- fmt.Errorf("gRPC health server error: %w", err)
			}
		}()
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		logger.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
		logger.Info("Initiating graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Shutdown timeout exceeded, forcing stop")
			httpServer.Close()
		}
		if healthServer != nil {
			healthServer.Stop(shutdownCtx)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to stop metrics server")
		}
		close(stopMetrics)
		close(stopCleanup)

		if invalidator != nil {
			if err := invalidator.Stop(); err != nil {
				logger.WithError(err).Warn("Failed to stop schema invalidator")
			}
		}

		// Close database connection
		if err := pg.Close(); err != nil {
			logger.WithError(err).Error("Error closing database connection")
		}

		logger.Info("Shutdown complete")
	}
}

// newProductStore selects the product repository and transactor for the configured backend
func newProductStore(ctx context.Context, cfg *config.Config, pg *database.Postgres) (repositories.ProductRepository, repositories.Transactor, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendDynamoDB:
		client, err := dynamodb.NewClient(ctx, cfg.Store.DynamoDB)
		if err != nil {
			return nil, nil, err
		}
		table := cfg.Store.DynamoDB.Table
		return dynamodb.NewDynamoProductRepository(client, table), dynamodb.NewDynamoTransactor(client, table), nil
	default:
		return postgres.NewPostgresProductRepository(pg.DB), postgres.NewPostgresTransactor(pg.DB), nil
	}
}

// newSchemaCache returns nil when the schema cache is disabled
func newSchemaCache(ctx context.Context, cfg *config.Config) (pkgcache.Cache, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		return memorycache.New(&memorycache.Config{MaxEntries: cfg.Cache.MaxEntries}), nil
	case config.CacheBackendRedis:
		c, err := rediscache.New(ctx, &rediscache.Config{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   rediscache.DefaultPrefix,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, nil
	}
}

func newMetricsServer(port int, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
