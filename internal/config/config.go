package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Backend kinds accepted by Relay.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

type LogConfig struct {
	Level  string `env:"PARLEY_LOG_LEVEL" env-default:"info"`
	Format string `env:"PARLEY_LOG_FORMAT" env-default:"text"`
}

type RedisConfig struct {
	Addr string `env:"PARLEY_REDIS_ADDR" env-default:"localhost:6379"`
}

type MongoConfig struct {
	URI      string `env:"PARLEY_MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database string `env:"PARLEY_MONGO_DB" env-default:"parley"`
}

type JWTConfig struct {
	Secret string        `env:"PARLEY_JWT_SECRET" env-required:"true"`
	Issuer string        `env:"PARLEY_JWT_ISSUER" env-default:"parley"`
	TTL    time.Duration `env:"PARLEY_JWT_TTL" env-default:"720h"`
}

type FetchLimiter struct {
	RPS   float64 `env:"PARLEY_FETCH_RPS" env-default:"5"`
	Burst int     `env:"PARLEY_FETCH_BURST" env-default:"10"`
}

type PrekeyPolicy struct {
	MaxSignedPrekeyAge time.Duration `env:"PARLEY_SPK_MAX_AGE" env-default:"72h"`
	ReplenishThreshold int           `env:"PARLEY_OTK_THRESHOLD" env-default:"10"`
}

// Relay is the relay server's configuration.
type Relay struct {
	Addr    string `env:"PARLEY_RELAY_ADDR" env-default:":8080"`
	Backend string `env:"PARLEY_BACKEND" env-default:"memory"`
	Redis   RedisConfig
	Mongo   MongoConfig
	JWT     JWTConfig
	Fetch   FetchLimiter
	Prekeys PrekeyPolicy
	Log     LogConfig
}

// Client is the CLI's configuration. Flags override these values.
type Client struct {
	Home     string        `env:"PARLEY_HOME"`
	RelayURL string        `env:"PARLEY_RELAY_URL" env-default:"http://127.0.0.1:8080"`
	Account  string        `env:"PARLEY_ACCOUNT"`
	Token    string        `env:"PARLEY_TOKEN"`
	Timeout  time.Duration `env:"PARLEY_HTTP_TIMEOUT" env-default:"15s"`
	Log      LogConfig
}

// LoadRelay reads the relay configuration from the environment, after
// loading envFile into it when one is given.
func LoadRelay(envFile string) (*Relay, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	var cfg Relay
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read relay config: %w", err)
	}
	switch cfg.Backend {
	case BackendMemory, BackendRedis, BackendMongo:
	default:
		return nil, fmt.Errorf("unknown backend %q (want memory, redis or mongo)", cfg.Backend)
	}
	return &cfg, nil
}

// LoadClient reads the client configuration. Home defaults to ~/.parley.
func LoadClient(envFile string) (*Client, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	var cfg Client
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read client config: %w", err)
	}
	if cfg.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.Home = filepath.Join(home, ".parley")
	}
	return &cfg, nil
}

// loadEnvFile does not override variables already set in the environment.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
