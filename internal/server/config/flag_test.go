package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected *Config
		name     string
		args     []string
		wantErr  bool
	}{
		{
			name: "all flags",
			args: []string{
				"-a", "127.0.0.1:8081", "-g", "127.0.0.1:9090", "-d", "db", "-r", "redis://r:6379",
				"-k", "envelope", "-s", "signing", "-t", "45m", "-l", "debug",
			},
			expected: &Config{
				HTTPAddr:       "127.0.0.1:8081",
				GRPCAddr:       "127.0.0.1:9090",
				DatabaseDSN:    "db",
				RedisURL:       "redis://r:6379",
				EnvelopeSecret: "envelope",
				SigningSecret:  "signing",
				TokenTTL:       45 * time.Minute,
				LogLevel:       "debug",
			},
		},
		{
			name:     "foreign flags are ignored",
			args:     []string{"-c", "cfg.json", "-x", "1", "-a", ":1"},
			expected: &Config{HTTPAddr: ":1"},
		},
		{
			name:    "bad duration",
			args:    []string{"-t", "forever"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			err := parseFlags(config, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
