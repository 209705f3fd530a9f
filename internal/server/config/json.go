package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/flagx"
	"github.com/dmitrijs2005/taskauth/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations use timex.Duration so
// both "5m" and integer nanoseconds are accepted. Zero values leave the
// current setting untouched.
type JsonConfig struct {
	HTTPAddr       string         `json:"http_addr"`
	GRPCAddr       string         `json:"grpc_addr"`
	DatabaseDSN    string         `json:"database_dsn"`
	RedisURL       string         `json:"redis_url"`
	RequestTimeout timex.Duration `json:"request_timeout"`

	EnvelopeSecret string         `json:"envelope_secret"`
	SigningSecret  string         `json:"signing_secret"`
	TokenTTL       timex.Duration `json:"token_ttl"`

	LockoutWindow    timex.Duration `json:"lockout_window"`
	AttemptsPerLevel int            `json:"attempts_per_level"`
	FirstLockout     timex.Duration `json:"first_lockout"`
	SecondLockout    timex.Duration `json:"second_lockout"`

	SessionSweepInterval timex.Duration `json:"session_sweep_interval"`

	PasswordAlgorithm       string `json:"password_algorithm"`
	BcryptCost              int    `json:"bcrypt_cost"`
	ExposeAttemptsRemaining *bool  `json:"expose_attempts_remaining"`

	AdminUsername string `json:"admin_username"`
	AdminPassword string `json:"admin_password"`

	CORSAllowedOrigins []string `json:"cors_allowed_origins"`

	LogBackend string `json:"log_backend"`
	LogFormat  string `json:"log_format"`
	LogLevel   string `json:"log_level"`
}

// parseJson overlays the JSON file named by -c or -config in args onto
// config. Without either flag nothing is loaded.
func parseJson(config *Config, args []string) error {
	path := flagx.JsonConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisURL, c.RedisURL)
	setDuration(&config.RequestTimeout, c.RequestTimeout)
	setString(&config.EnvelopeSecret, c.EnvelopeSecret)
	setString(&config.SigningSecret, c.SigningSecret)
	setDuration(&config.TokenTTL, c.TokenTTL)
	setDuration(&config.LockoutWindow, c.LockoutWindow)
	setInt(&config.AttemptsPerLevel, c.AttemptsPerLevel)
	setDuration(&config.FirstLockout, c.FirstLockout)
	setDuration(&config.SecondLockout, c.SecondLockout)
	setDuration(&config.SessionSweepInterval, c.SessionSweepInterval)
	setString(&config.PasswordAlgorithm, c.PasswordAlgorithm)
	setInt(&config.BcryptCost, c.BcryptCost)
	if c.ExposeAttemptsRemaining != nil {
		config.ExposeAttemptsRemaining = *c.ExposeAttemptsRemaining
	}
	setString(&config.AdminUsername, c.AdminUsername)
	setString(&config.AdminPassword, c.AdminPassword)
	if len(c.CORSAllowedOrigins) > 0 {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
