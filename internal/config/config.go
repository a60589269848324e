package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken    string `envconfig:"BOT_TOKEN" required:"true"`
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite|postgres
	DBPath      string `envconfig:"DB_PATH" default:"./data/helios.db"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`                // empty disables rate limiting
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8000"`

	WebAppURL          string   `envconfig:"WEBAPP_URL" default:"https://bamboo-1.vercel.app"`
	OnboardingImageURL string   `envconfig:"ONBOARDING_IMAGE_URL" default:"https://i.imgur.com/SLkkAs3.png"`
	CORSOrigins        []string `envconfig:"CORS_ORIGINS" default:"https://bamboo-1.vercel.app,http://localhost:5173"`

	TickInterval       time.Duration `envconfig:"TICK_INTERVAL" default:"1s"`
	CycleLength        int           `envconfig:"CYCLE_LENGTH" default:"3600"`
	CheckpointSchedule string        `envconfig:"CHECKPOINT_SCHEDULE" default:"@every 50s"`
	ResumeProgress     bool          `envconfig:"RESUME_PROGRESS" default:"false"`

	AirdropLimit        int           `envconfig:"AIRDROP_LIMIT" default:"8"`
	NotifyCooldown      time.Duration `envconfig:"NOTIFY_COOLDOWN" default:"24h"`
	DistributionWorkers int           `envconfig:"DISTRIBUTION_WORKERS" default:"16"`
	RateLimitPerMinute  int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`
}

// Load reads an optional .env file, then environment variables into Config.
func Load() (Config, error) {
	// Missing .env is fine; real environment wins over the file.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return errors.New("BOT_TOKEN must not be blank")
	}
	switch c.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.TickInterval <= 0 {
		return errors.New("TICK_INTERVAL must be positive")
	}
	if c.CycleLength <= 0 {
		return errors.New("CYCLE_LENGTH must be positive")
	}
	if c.AirdropLimit <= 0 {
		return errors.New("AIRDROP_LIMIT must be positive")
	}
	if c.DistributionWorkers <= 0 {
		return errors.New("DISTRIBUTION_WORKERS must be positive")
	}
	if c.NotifyCooldown < 0 {
		return errors.New("NOTIFY_COOLDOWN must not be negative")
	}
	return nil
}
