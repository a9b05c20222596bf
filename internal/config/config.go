package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

type Config struct {
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"50051"`

	StorageDriver     string `envconfig:"STORAGE_DRIVER" default:"mysql"`
	MySQLDSN          string `envconfig:"MYSQL_DSN" default:"root:password@tcp(localhost:3306)/inventory"`
	MySQLMaxOpenConns int    `envconfig:"MYSQL_MAX_OPEN_CONNS" default:"50"`
	MySQLMaxIdleConns int    `envconfig:"MYSQL_MAX_IDLE_CONNS" default:"10"`

	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"5m"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"inventory-events"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`

	APIKeyID  string        `envconfig:"API_KEY_ID"`
	APISecret string        `envconfig:"API_SECRET"`
	APISigTTL time.Duration `envconfig:"API_SIG_TTL" default:"5m"`

	UploadDir      string `envconfig:"UPLOAD_DIR" default:"uploads"`
	ItemCodePrefix string `envconfig:"ITEM_CODE_PREFIX" default:"BRG"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Missing files are fine; real environment variables still win.
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "process env")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMySQL:
		if strings.TrimSpace(c.MySQLDSN) == "" {
			return errors.New("MYSQL_DSN is required for the mysql storage driver")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.APIKeyID == "" || c.APISecret == "" {
		return errors.New("API_KEY_ID and API_SECRET are required")
	}
	if c.JWTTTL <= 0 || c.APISigTTL <= 0 {
		return errors.New("JWT_TTL and API_SIG_TTL must be positive")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "LOG_LEVEL")
	}
	return nil
}

func (c *Config) Level() zapcore.Level {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// Brokers drops empty entries so KAFKA_BROKERS="" disables publishing.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
