package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Port     string
	DBDriver string
	DBConn   string
	LogLevel string

	JWTSecret     string
	EncryptionKey string

	PayWayURL           string
	PayWayTokenLeadTime time.Duration
	SOAPFeedURL         string
	RedisURL            string

	SyncSchedule string
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	ReportEmail  string
}

// NewConfig loads configuration from defaults, the optional file named by
// CUOTIFICADOR_CONFIG and environment variables, in increasing priority
func NewConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_conn", "host=localhost port=5436 user=test password=test dbname=cuotificador sslmode=disable")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("jwt_secret", "secret")
	v.SetDefault("encryption_key", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6")
	v.SetDefault("payway_url", "")
	v.SetDefault("payway_token_lead_time", "5m")
	v.SetDefault("soap_feed_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("sync_schedule", "0 6 * * *")
	v.SetDefault("smtp_host", "localhost")
	v.SetDefault("smtp_port", "25")
	v.SetDefault("smtp_username", "")
	v.SetDefault("smtp_password", "")
	v.SetDefault("sender_email", "cuotificador@localhost")
	v.SetDefault("report_email", "")

	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if path := os.Getenv("CUOTIFICADOR_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:                v.GetString("port"),
		DBDriver:            v.GetString("db_driver"),
		DBConn:              v.GetString("db_conn"),
		LogLevel:            v.GetString("log_level"),
		JWTSecret:           v.GetString("jwt_secret"),
		EncryptionKey:       v.GetString("encryption_key"),
		PayWayURL:           v.GetString("payway_url"),
		PayWayTokenLeadTime: v.GetDuration("payway_token_lead_time"),
		SOAPFeedURL:         v.GetString("soap_feed_url"),
		RedisURL:            v.GetString("redis_url"),
		SyncSchedule:        v.GetString("sync_schedule"),
		SMTPHost:            v.GetString("smtp_host"),
		SMTPPort:            v.GetString("smtp_port"),
		SMTPUsername:        v.GetString("smtp_username"),
		SMTPPassword:        v.GetString("smtp_password"),
		SenderEmail:         v.GetString("sender_email"),
		ReportEmail:         v.GetString("report_email"),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite3" {
		return nil, fmt.Errorf("DB_DRIVER must be postgres or sqlite3, got %q", cfg.DBDriver)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if cfg.PayWayTokenLeadTime < 0 {
		return nil, fmt.Errorf("PAYWAY_TOKEN_LEAD_TIME must not be negative")
	}

	return cfg, nil
}
