package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Cache     Cache     `envPrefix:"CACHE_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		SQLite    SQLite    `envPrefix:"SQLITE_"`
		Backend   Backend   `envPrefix:"BACKEND_"`
		Layers    Layers    `envPrefix:"LAYERS_"`
	}

	HTTP struct {
		Server Server `envPrefix:"SERVER_"`
	}

	Server struct {
		Port         string        `env:"PORT,required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level  string `env:"LEVEL,required"`
		Format string `env:"FORMAT" envDefault:"console"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"wmscache"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`
		Environment    string `env:"ENVIRONMENT" envDefault:"development"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	}

	Cache struct {
		// Backend selects the tile store: memory, map, redis, sqlite or filesystem.
		Backend string `env:"BACKEND" envDefault:"memory"`
		// DefaultExpiration replaces a missing backend max-age.
		DefaultExpiration time.Duration `env:"DEFAULT_EXPIRATION" envDefault:"7200s"`
		MemoryMaxSize     int64         `env:"MEMORY_MAX_SIZE" envDefault:"10000"`
		Dir               string        `env:"DIR" envDefault:"./tiles"`
	}

	Redis struct {
		Addr     string `env:"ADDR" envDefault:"localhost:6379"`
		Password string `env:"PASSWORD"`
		DB       int    `env:"DB" envDefault:"0"`
	}

	SQLite struct {
		Path string `env:"PATH" envDefault:"file:tiles.db?cache=shared"`
	}

	Backend struct {
		Timeout   time.Duration `env:"TIMEOUT" envDefault:"30s"`
		UserAgent string        `env:"USER_AGENT" envDefault:"wmscache/1.0"`
		MaxPixels int           `env:"MAX_PIXELS" envDefault:"67108864"`
		MaxConns  int           `env:"MAX_IDLE_CONNS_PER_HOST" envDefault:"32"`
	}

	Layers struct {
		File string `env:"FILE,required"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
