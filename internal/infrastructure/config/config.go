package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends for product data
const (
	StoreBackendPostgres = "postgres"
	StoreBackendDynamoDB = "dynamodb"
)

// Schema cache backends
const (
	CacheBackendNone   = "none"
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig
	HTTP       HTTPConfig
	Database   DatabaseConfig
	Store      StoreConfig
	Cache      CacheConfig
	Identity   IdentityConfig
	Log        LogConfig
	EntityType string // Entity type served by the gateway
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string
	Port           int
	MetricsPort    int // Port for Prometheus metrics HTTP server
	HealthGRPCPort int // 0 disables the gRPC health server
}

// HTTPConfig represents settings of the gateway endpoint
type HTTPConfig struct {
	ServicePath         string
	TrustForwardedProto bool
	RateLimitRPS        float64 // 0 disables rate limiting
	RateLimitBurst      int
	MaxBodyBytes        int64
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// StoreConfig selects and configures the product store
type StoreConfig struct {
	Backend  string
	DynamoDB DynamoDBConfig
}

// DynamoDBConfig represents the DynamoDB product table settings
type DynamoDBConfig struct {
	Table           string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional, e.g. DynamoDB Local
}

// CacheConfig represents schema cache configuration
type CacheConfig struct {
	Backend    string
	TTLSeconds int
	MaxEntries int
	Redis      RedisConfig
}

// RedisConfig represents redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// IdentityConfig represents customer login settings
type IdentityConfig struct {
	MaxFailedLogins int
	BcryptCost      int
}

// LogConfig represents logger settings
type LogConfig struct {
	Level  string
	Format string
}

// ProjectRoot finds the project root directory by looking for go.mod
func ProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	projectRoot, err := ProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot)

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	setDefaults()

	return nil
}

func setDefaults() {
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("HEALTH_GRPC_PORT", 0)

	viper.SetDefault("HTTP_SERVICE_PATH", "/ProductService-Service")
	viper.SetDefault("HTTP_TRUST_FORWARDED_PROTO", false)
	viper.SetDefault("HTTP_RATE_LIMIT_RPS", 0)
	viper.SetDefault("HTTP_RATE_LIMIT_BURST", 20)
	viper.SetDefault("HTTP_MAX_BODY_BYTES", 1<<20) // 1MB

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "attrgate")
	viper.SetDefault("DB_NAME", "attrgate_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	viper.SetDefault("STORE_BACKEND", StoreBackendPostgres)
	viper.SetDefault("DYNAMODB_TABLE", "products")
	viper.SetDefault("AWS_REGION", "us-east-1")

	// The schema is read fresh on every request unless a cache backend is chosen
	viper.SetDefault("SCHEMA_CACHE_BACKEND", CacheBackendNone)
	viper.SetDefault("SCHEMA_CACHE_TTL_SECONDS", 60)
	viper.SetDefault("SCHEMA_CACHE_MAX_ENTRIES", 128)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)

	viper.SetDefault("IDENTITY_MAX_FAILED_LOGINS", 5)
	viper.SetDefault("IDENTITY_BCRYPT_COST", 10)

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")

	viper.SetDefault("ENTITY_TYPE", "Product")
}

// Load loads configuration from viper
func Load() (*Config, error) {
	// DB_PASSWORD is required for security
	dbPassword := viper.GetString("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	config := &Config{
		Server: ServerConfig{
			Host:           viper.GetString("SERVER_HOST"),
			Port:           viper.GetInt("SERVER_PORT"),
			MetricsPort:    viper.GetInt("METRICS_PORT"),
			HealthGRPCPort: viper.GetInt("HEALTH_GRPC_PORT"),
		},
		HTTP: HTTPConfig{
			ServicePath:         viper.GetString("HTTP_SERVICE_PATH"),
			TrustForwardedProto: viper.GetBool("HTTP_TRUST_FORWARDED_PROTO"),
			RateLimitRPS:        viper.GetFloat64("HTTP_RATE_LIMIT_RPS"),
			RateLimitBurst:      viper.GetInt("HTTP_RATE_LIMIT_BURST"),
			MaxBodyBytes:        viper.GetInt64("HTTP_MAX_BODY_BYTES"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: dbPassword,
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(viper.GetString("STORE_BACKEND")),
			DynamoDB: DynamoDBConfig{
				Table:           viper.GetString("DYNAMODB_TABLE"),
				Region:          viper.GetString("AWS_REGION"),
				AccessKeyID:     viper.GetString("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: viper.GetString("AWS_SECRET_ACCESS_KEY"),
				Endpoint:        viper.GetString("DYNAMODB_ENDPOINT"),
			},
		},
		Cache: CacheConfig{
			Backend:    strings.ToLower(viper.GetString("SCHEMA_CACHE_BACKEND")),
			TTLSeconds: viper.GetInt("SCHEMA_CACHE_TTL_SECONDS"),
			MaxEntries: viper.GetInt("SCHEMA_CACHE_MAX_ENTRIES"),
			Redis: RedisConfig{
				Addr:     viper.GetString("REDIS_ADDR"),
				Password: viper.GetString("REDIS_PASSWORD"),
				DB:       viper.GetInt("REDIS_DB"),
			},
		},
		Identity: IdentityConfig{
			MaxFailedLogins: viper.GetInt("IDENTITY_MAX_FAILED_LOGINS"),
			BcryptCost:      viper.GetInt("IDENTITY_BCRYPT_COST"),
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
		EntityType: viper.GetString("ENTITY_TYPE"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the enumerated settings
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreBackendPostgres:
	case StoreBackendDynamoDB:
		if c.Store.DynamoDB.Table == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required when STORE_BACKEND=dynamodb")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND: %q", c.Store.Backend)
	}

	switch c.Cache.Backend {
	case CacheBackendNone, CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unknown SCHEMA_CACHE_BACKEND: %q", c.Cache.Backend)
	}

	if c.EntityType == "" {
		return fmt.Errorf("ENTITY_TYPE must not be empty")
	}

	return nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}

// TTL returns the schema cache entry lifetime
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}
