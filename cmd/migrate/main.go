package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/asakaida/attrgate/internal/infrastructure/config"
	"github.com/asakaida/attrgate/internal/infrastructure/database"
	"github.com/asakaida/attrgate/internal/infrastructure/logging"
	"github.com/asakaida/attrgate/internal/repositories"
	"github.com/asakaida/attrgate/internal/repositories/dynamodb"
	"github.com/asakaida/attrgate/internal/repositories/postgres"
	"github.com/asakaida/attrgate/internal/seed"
	"github.com/asakaida/attrgate/internal/services"
	"github.com/asakaida/attrgate/internal/services/guard"
)

var (
	envFlag string
	cfg     *config.Config
	pg      *database.Postgres
	log     = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for attrgate",
	Long: `Database migration tool for attrgate.
Manages PostgreSQL schema migrations using golang-migrate and loads seed data.`,
	PersistentPreRun: setupDatabase,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run:   runUp,
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations",
	Long:  `Rollback the specified number of migrations (default: 1).`,
	Args:  cobra.MaximumNArgs(1),
	Run:   runDown,
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Args:  cobra.ExactArgs(1),
	Run:   runGoto,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	Run:   runVersion,
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Args:  cobra.ExactArgs(1),
	Run:   runForce,
}

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load schemas, customers and products from a YAML file",
	Long: `Load schemas, customers and products from a YAML file.
Schemas are replaced, customers are upserted and existing products are left unchanged.
Products go to the configured STORE_BACKEND.`,
	Args: cobra.ExactArgs(1),
	Run:  runSeed,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(gotoCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forceCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}

func setupDatabase(cmd *cobra.Command, args []string) {
	if err := config.InitConfig(envFlag); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	log = logger
	log.WithField("env", envFlag).Info("using environment")

	pg, err = database.NewPostgres(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.WithFields(logrus.Fields{
		"user":     cfg.Database.User,
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Database,
	}).Info("connected to database")
}

func newMigrate() *migrate.Migrate {
	root, err := config.ProjectRoot()
	if err != nil {
		log.Fatalf("Failed to find project root: %v", err)
	}

	migrationsPath := filepath.Join(root, database.MigrationsPathSuffix)
	log.WithField("path", migrationsPath).Info("using migrations path")

	m, err := pg.NewMigrate(migrationsPath)
	if err != nil {
		log.Fatalf("Failed to create migrate instance: %v", err)
	}
	return m
}

func parseVersion(arg string) int {
	v, err := strconv.Atoi(arg)
	if err != nil || v < 0 {
		log.Fatalf("Invalid version %q", arg)
	}
	return v
}

func runUp(cmd *cobra.Command, args []string) {
	m := newMigrate()
	defer m.Close()

	err := m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("no migrations to apply")
	case err != nil:
		log.Fatalf("Migration up failed: %v", err)
	default:
		log.Info("migration up completed successfully")
	}
}

func runDown(cmd *cobra.Command, args []string) {
	steps := 1
	if len(args) > 0 {
		steps = parseVersion(args[0])
	}

	m := newMigrate()
	defer m.Close()

	err := m.Steps(-steps)
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("no migrations to rollback")
	case err != nil:
		log.Fatalf("Migration down failed: %v", err)
	default:
		log.WithField("steps", steps).Info("migration down completed successfully")
	}
}

func runGoto(cmd *cobra.Command, args []string) {
	version := parseVersion(args[0])

	m := newMigrate()
	defer m.Close()

	err := m.Migrate(uint(version))
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.WithField("version", version).Info("already at version")
	case err != nil:
		log.Fatalf("Migration goto failed: %v", err)
	default:
		log.WithField("version", version).Info("migration goto completed successfully")
	}
}

func runVersion(cmd *cobra.Command, args []string) {
	m := newMigrate()
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("Current version: No migrations applied yet")
		return
	}
	if err != nil {
		log.Fatalf("Failed to get version: %v", err)
	}

	if dirty {
		fmt.Printf("Current version: %d (dirty - migration may have failed)\n", version)
	} else {
		fmt.Printf("Current version: %d\n", version)
	}
}

func runForce(cmd *cobra.Command, args []string) {
	version := parseVersion(args[0])

	m := newMigrate()
	defer m.Close()

	if err := m.Force(version); err != nil {
		log.Fatalf("Migration force failed: %v", err)
	}
	log.WithField("version", version).Warn("migration version forced")
}

func runSeed(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	defer pg.Close()

	f, err := seed.Load(args[0])
	if err != nil {
		log.Fatalf("Failed to load seed file: %v", err)
	}

	guards, err := guard.NewEngine()
	if err != nil {
		log.Fatalf("Failed to create write guard engine: %v", err)
	}

	products, err := productStore(ctx)
	if err != nil {
		log.Fatalf("Failed to open product store: %v", err)
	}

	summary, err := seed.Apply(ctx, f, seed.Targets{
		Schemas:   services.NewSchemaService(postgres.NewPostgresAttributeDefinitionRepository(pg.DB), guards),
		Customers: postgres.NewPostgresCustomerRepository(pg.DB),
		Products:  products,
		Hash: func(password string) (string, error) {
			return services.HashPassword(password, cfg.Identity.BcryptCost)
		},
	}, log)
	if err != nil {
		log.Fatalf("Seed failed: %v", err)
	}

	log.WithFields(logrus.Fields{
		"schemas":   summary.Schemas,
		"customers": summary.Customers,
		"products":  summary.Products,
	}).Info("seed completed successfully")
}

func productStore(ctx context.Context) (repositories.ProductRepository, error) {
	if cfg.Store.Backend == config.StoreBackendDynamoDB {
		client, err := dynamodb.NewClient(ctx, cfg.Store.DynamoDB)
		if err != nil {
			return nil, err
		}
		return dynamodb.NewDynamoProductRepository(client, cfg.Store.DynamoDB.Table), nil
	}
	return postgres.NewPostgresProductRepository(pg.DB), nil
}
