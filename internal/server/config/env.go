package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable read by parseEnv.
const EnvPrefix = "TASKAUTH_"

type lookupFunc func(key string) (string, bool)

// envLookup returns a lookup that prefers the process environment and falls
// back to the variables in dotenvPath. A missing file is not an error.
func envLookup(dotenvPath string) (lookupFunc, error) {
	fileVars := map[string]string{}
	if dotenvPath != "" {
		vars, err := godotenv.Read(dotenvPath)
		switch {
		case err == nil:
			fileVars = vars
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", dotenvPath, err)
		}
	}

	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}, nil
}

// parseEnv overlays TASKAUTH_* variables onto config.
func parseEnv(config *Config, lookup lookupFunc) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("HTTP_ADDR", &config.HTTPAddr)
	str("GRPC_ADDR", &config.GRPCAddr)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("REDIS_URL", &config.RedisURL)
	dur("REQUEST_TIMEOUT", &config.RequestTimeout)
	str("ENVELOPE_SECRET", &config.EnvelopeSecret)
	str("SIGNING_SECRET", &config.SigningSecret)
	dur("TOKEN_TTL", &config.TokenTTL)
	dur("LOCKOUT_WINDOW", &config.LockoutWindow)
	num("ATTEMPTS_PER_LEVEL", &config.AttemptsPerLevel)
	dur("FIRST_LOCKOUT", &config.FirstLockout)
	dur("SECOND_LOCKOUT", &config.SecondLockout)
	dur("SESSION_SWEEP_INTERVAL", &config.SessionSweepInterval)
	str("PASSWORD_ALGORITHM", &config.PasswordAlgorithm)
	num("BCRYPT_COST", &config.BcryptCost)
	boolean("EXPOSE_ATTEMPTS_REMAINING", &config.ExposeAttemptsRemaining)
	str("ADMIN_USERNAME", &config.AdminUsername)
	str("ADMIN_PASSWORD", &config.AdminPassword)
	str("LOG_BACKEND", &config.LogBackend)
	str("LOG_FORMAT", &config.LogFormat)
	str("LOG_LEVEL", &config.LogLevel)

	if v, ok := lookup(EnvPrefix + "CORS_ALLOWED_ORIGINS"); ok && v != "" {
		config.CORSAllowedOrigins = splitList(v)
	}

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
