package main

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/rlstudio/internal/config"
)

func TestResolveDSNPrecedence(t *testing.T) {
	cases := []struct {
		name string
		flag string
		env  string
		cfg  *config.Config
		want string
	}{
		{
			name: "flag wins",
			flag: "postgres://flag",
			env:  "postgres://env",
			cfg:  &config.Config{PostgresDSN: "postgres://cfg"},
			want: "postgres://flag",
		},
		{
			name: "env when flag missing",
			flag: "",
			env:  "postgres://env",
			cfg:  &config.Config{PostgresDSN: "postgres://cfg"},
			want: "postgres://env",
		},
		{
			name: "config dsn when flag/env empty",
			flag: "",
			env:  "",
			cfg:  &config.Config{PostgresDSN: "postgres://cfg"},
			want: "postgres://cfg",
		},
		{
			name: "empty when nothing provided",
			flag: "",
			env:  "",
			cfg:  &config.Config{},
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.env != "" {
				require.NoError(t, os.Setenv("DATABASE_URL", tc.env))
				t.Cleanup(func() { os.Unsetenv("DATABASE_URL") })
			} else {
				os.Unsetenv("DATABASE_URL")
			}

			got := resolveDSN(tc.flag, tc.cfg)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDetermineAddrPrefersExplicitFlag(t *testing.T) {
	assert.Equal(t, ":9999", determineAddr(":9999", &config.Config{HTTPPort: 8080}))
}

func TestDetermineAddrFallsBackToConfigPort(t *testing.T) {
	assert.Equal(t, ":8080", determineAddr("", &config.Config{HTTPPort: 8080}))
}

func TestDetermineAddrDefaultsWhenNothingSet(t *testing.T) {
	assert.Equal(t, ":8080", determineAddr("", &config.Config{}))
}

func TestRateLimitFromConfigConvertsWindowToRPS(t *testing.T) {
	cfg := &config.Config{RateLimitRequests: 120, RateLimitWindow: time.Minute}
	rl := rateLimitFromConfig(cfg)
	assert.InDelta(t, 2.0, rl.RequestsPerSecond, 1e-9)
	assert.Equal(t, 120, rl.Burst)
}
