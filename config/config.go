package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Reservation ReservationConfig `yaml:"reservation"`
	Database    DatabaseConfig    `yaml:"database"`
	Push        PushConfig        `yaml:"push"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// ReservationConfig holds the reservation-core configuration.
type ReservationConfig struct {
	Timezone              string        `yaml:"timezone"`
	ReaperIntervalSeconds int           `yaml:"reaper_interval_seconds"`
	ReaperInterval        time.Duration `yaml:"-"` // Ignored by YAML parser
	RetentionDays         int           `yaml:"retention_days"`
	Retention             time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Reservation.Timezone == "" {
		cfg.Reservation.Timezone = "Asia/Kolkata"
	}

	if cfg.Reservation.ReaperIntervalSeconds <= 0 {
		cfg.Reservation.ReaperIntervalSeconds = 60
	}
	cfg.Reservation.ReaperInterval = time.Duration(cfg.Reservation.ReaperIntervalSeconds) * time.Second

	if cfg.Reservation.RetentionDays <= 0 {
		cfg.Reservation.RetentionDays = 180
	}
	cfg.Reservation.Retention = time.Duration(cfg.Reservation.RetentionDays) * 24 * time.Hour

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
