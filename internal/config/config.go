package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	// Region kill-switches, snapshotted once per initiation call.
	LocalTransfersEnabled         bool `env:"LOCAL_TRANSFERS_ENABLED" envDefault:"true"`
	InternationalTransfersEnabled bool `env:"INTERNATIONAL_TRANSFERS_ENABLED" envDefault:"true"`

	OTPTTLMinutes       int `env:"OTP_TTL_MINUTES" envDefault:"5"`
	OTPMaxAttempts      int `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	OTPIssuePerMinute   int `env:"OTP_ISSUE_PER_MINUTE" envDefault:"3"`
	ComplianceWindowHrs int `env:"COMPLIANCE_WINDOW_HOURS" envDefault:"72"`

	LocalFeePct         float64 `env:"LOCAL_FEE_PCT" envDefault:"0.001"`
	InternationalFeePct float64 `env:"INTERNATIONAL_FEE_PCT" envDefault:"0.0125"`

	SweepIntervalS    int    `env:"SWEEP_INTERVAL_S" envDefault:"30"`
	DispatchIntervalS int    `env:"DISPATCH_INTERVAL_S" envDefault:"5"`
	WebhookURL        string `env:"NOTIFY_WEBHOOK_URL" envDefault:"http://notify-sink:8081/events"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Switches is an immutable snapshot of the region kill-switches. Initiation
// reads one snapshot at the top of the call; a flag flip mid-flight never
// produces a torn read across the multi-step flow.
type Switches struct {
	Local         bool
	International bool
}

func (c *Config) Switches() Switches {
	return Switches{
		Local:         c.LocalTransfersEnabled,
		International: c.InternationalTransfersEnabled,
	}
}

func (c *Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}

func (c *Config) ComplianceWindow() time.Duration {
	return time.Duration(c.ComplianceWindowHrs) * time.Hour
}
