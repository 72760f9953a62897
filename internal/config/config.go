package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort  string   `env:"SERVER_PORT" envDefault:"8080"`
	SwaggerHost string   `env:"SWAGGER_HOST"`
	ResetDB     bool     `env:"RESET_DB" envDefault:"false"`
	Database    Database `envPrefix:"DB_"`
	Redis       Redis    `envPrefix:"REDIS_"`
	CORS        CORS     `envPrefix:"CORS_"`
	S3          S3       `envPrefix:"S3_"`
	Log         Log      `envPrefix:"LOG_"`
	Auth        Auth
	Model       Model
}

// Database selects the gorm dialector and its DSN.
type Database struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"sadar.db?_foreign_keys=on&_busy_timeout=5000"`
}

// Redis configures the profile cache. An empty address selects the in-process cache.
type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Auth holds the signing secret and credential policy.
// The secret is removed from the process environment once read.
type Auth struct {
	JWTSecret         string        `env:"JWT_SECRET,required,notEmpty,unset"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	BcryptCost        int           `env:"BCRYPT_COST" envDefault:"10"`
	MinPasswordLength int           `env:"MIN_PASSWORD_LENGTH" envDefault:"4"`
}

// CORS lists origins permitted to call the API cross-origin.
type CORS struct {
	AllowOrigins []string `env:"ALLOW_ORIGINS" envSeparator:"," envDefault:"https://sadar-backend.vercel.app"`
}

// Model locates the classifier artifact and its label decoder.
// Paths may be local files or s3://bucket/key URIs.
type Model struct {
	Path       string `env:"MODEL_PATH" envDefault:"rf_model.json"`
	LabelsPath string `env:"LABELS_PATH" envDefault:"label_encoder.json"`
}

// S3 configures the object storage used for s3:// artifact URIs.
type S3 struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
}

// Log configures zerolog.
type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load reads an optional .env file and builds Config from the environment.
func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()
	return Parse(env.Options{})
}

// Parse builds Config with explicit env options; tests pass Environment directly.
func Parse(opts env.Options) (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Auth.TokenTTL <= 0 {
		return nil, fmt.Errorf("parse config: TOKEN_TTL must be positive")
	}
	if cfg.Auth.MinPasswordLength < 1 {
		return nil, fmt.Errorf("parse config: MIN_PASSWORD_LENGTH must be at least 1")
	}
	return &cfg, nil
}
