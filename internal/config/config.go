package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port              string
	DBConn            string
	Storage           string
	LogLevel          string
	JWTSecret         string
	CBRURL            string
	HMACSecret        string
	ReconcileCron     string
	ReminderCron      string
	ReminderDaysAhead int
	ReconcileWorkers  int
	ScheduleCadence   string
	Location          *time.Location
	SMTPHost          string
	SMTPPort          string
	SMTPUsername      string
	SMTPPassword      string
	SenderEmail       string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		DBConn:          getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=lending sslmode=disable"),
		Storage:         getEnv("STORAGE", "postgres"),
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:       getEnv("JWT_SECRET", "secret"),
		CBRURL:          getEnv("CBR_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),
		HMACSecret:      getEnv("HMAC_SECRET", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		ReconcileCron:   getEnv("RECONCILE_CRON", "0 5 * * *"),
		ReminderCron:    getEnv("REMINDER_CRON", "0 8 * * *"),
		ScheduleCadence: getEnv("SCHEDULE_CADENCE", "fixed30"),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnv("SMTP_PORT", "587"),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SenderEmail:     getEnv("SENDER_EMAIL", "no-reply@lending.local"),
	}

	var err error
	if cfg.ReminderDaysAhead, err = getEnvInt("REMINDER_DAYS_AHEAD", 3); err != nil {
		return nil, err
	}
	if cfg.ReconcileWorkers, err = getEnvInt("RECONCILE_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.Location, err = time.LoadLocation(getEnv("TIMEZONE", "UTC")); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	if cfg.Storage != "postgres" && cfg.Storage != "memory" {
		return nil, fmt.Errorf("STORAGE must be postgres or memory, got %q", cfg.Storage)
	}
	if cfg.Storage == "postgres" && cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.HMACSecret == "" {
		return nil, fmt.Errorf("HMAC_SECRET is required")
	}
	if cfg.ScheduleCadence != "fixed30" && cfg.ScheduleCadence != "calendar" {
		return nil, fmt.Errorf("SCHEDULE_CADENCE must be fixed30 or calendar, got %q", cfg.ScheduleCadence)
	}
	if cfg.ReconcileWorkers < 1 {
		return nil, fmt.Errorf("RECONCILE_WORKERS must be positive")
	}

	return cfg, nil
}

// NotificationsEnabled reports whether SMTP is configured.
func (c *Config) NotificationsEnabled() bool {
	return c.SMTPHost != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
