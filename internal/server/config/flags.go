package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/taskauth/internal/flagx"
)

// parseFlags overlays command-line flags onto config.
//
// Supported flags:
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-g string     gRPC bind address (e.g. ":50051")
//	-d string     PostgreSQL DSN
//	-r string     Redis URL for the session cache (empty disables it)
//	-k string     envelope secret
//	-s string     token signing secret
//	-t duration   token lifetime (e.g. "1h")
//	-l string     log level
//
// Only these flags are taken from args (see flagx.FilterArgs), so -c and
// flags owned by other components do not cause parse errors.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")
	fs.StringVar(&config.EnvelopeSecret, "k", config.EnvelopeSecret, "envelope secret")
	fs.StringVar(&config.SigningSecret, "s", config.SigningSecret, "signing secret")
	fs.DurationVar(&config.TokenTTL, "t", config.TokenTTL, "token lifetime")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	return fs.Parse(flagx.FilterArgs(args, flagx.Names(fs)))
}
