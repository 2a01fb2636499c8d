package config

import (
	"fmt"
	"os"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// validLogLevels are the accepted log level values.
var validLogLevels = []string{"debug", "info", "warn", "error"}

// durationEnvKeys lists the Config fields parsed as time.Duration, with defaults.
var durationEnvKeys = map[string]time.Duration{
	"UPDATE_INTERVAL":   180 * time.Second,
	"TICK_INTERVAL":     time.Second,
	"ERROR_BACKOFF":     5 * time.Second,
	"TIME_SYNC_TIMEOUT": 3 * time.Second,
	"READ_TIMEOUT":      5 * time.Second,
	"WRITE_TIMEOUT":     10 * time.Second,
	"IDLE_TIMEOUT":      60 * time.Second,
	"SHUTDOWN_TIMEOUT":  10 * time.Second,
}

// unsetAllConfigEnv clears all config env vars.
func unsetAllConfigEnv() {
	for _, key := range configEnvKeys {
		os.Unsetenv(key)
	}
}

// genDurationString generates a valid positive Go duration string.
func genDurationString() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		unit := rapid.SampledFrom([]string{"ms", "s", "m"}).Draw(t, "unit")
		val := rapid.IntRange(1, 600).Draw(t, "val")
		return fmt.Sprintf("%d%s", val, unit)
	})
}

func durationField(cfg *Config, key string) time.Duration {
	switch key {
	case "UPDATE_INTERVAL":
		return cfg.UpdateInterval
	case "TICK_INTERVAL":
		return cfg.TickInterval
	case "ERROR_BACKOFF":
		return cfg.ErrorBackoff
	case "TIME_SYNC_TIMEOUT":
		return cfg.TimeSyncTimeout
	case "READ_TIMEOUT":
		return cfg.ReadTimeout
	case "WRITE_TIMEOUT":
		return cfg.WriteTimeout
	case "IDLE_TIMEOUT":
		return cfg.IdleTimeout
	case "SHUTDOWN_TIMEOUT":
		return cfg.ShutdownTimeout
	}
	panic("unknown duration key " + key)
}

// Property: any combination of valid values loads, and each field equals
// either its env value or its default.
func TestProperty_ValidConfigParsing(t *testing.T) {
	t.Cleanup(unsetAllConfigEnv)
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		port := rapid.OneOf(rapid.Just(0), rapid.IntRange(1, 65535)).Draw(t, "port")
		logLevel := rapid.OneOf(rapid.Just(""), rapid.SampledFrom(validLogLevels)).Draw(t, "logLevel")
		driver := rapid.OneOf(rapid.Just(""), rapid.SampledFrom([]string{"memory", "sqlite", "postgres"})).Draw(t, "driver")
		prob := rapid.OneOf(rapid.Just(-1.0), rapid.Float64Range(0, 1)).Draw(t, "probability")

		durStrs := make(map[string]string, len(durationEnvKeys))
		for key := range durationEnvKeys {
			durStrs[key] = rapid.OneOf(rapid.Just(""), genDurationString()).Draw(t, key)
			if durStrs[key] != "" {
				os.Setenv(key, durStrs[key])
			}
		}
		if port != 0 {
			os.Setenv("PORT", fmt.Sprintf("%d", port))
		}
		if logLevel != "" {
			os.Setenv("LOG_LEVEL", logLevel)
		}
		if driver != "" {
			os.Setenv("STORE_DRIVER", driver)
		}
		if prob >= 0 {
			os.Setenv("NEWS_PROBABILITY", fmt.Sprintf("%g", prob))
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error for valid inputs: %v", err)
		}

		wantPort := 8080
		if port != 0 {
			wantPort = port
		}
		if cfg.Port != wantPort {
			t.Fatalf("Port = %d, want %d", cfg.Port, wantPort)
		}
		wantLevel := "info"
		if logLevel != "" {
			wantLevel = logLevel
		}
		if cfg.LogLevel != wantLevel {
			t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, wantLevel)
		}
		wantDriver := "sqlite"
		if driver != "" {
			wantDriver = driver
		}
		if cfg.StoreDriver != wantDriver {
			t.Fatalf("StoreDriver = %q, want %q", cfg.StoreDriver, wantDriver)
		}
		if cfg.NewsProbability < 0 || cfg.NewsProbability > 1 {
			t.Fatalf("NewsProbability = %v out of range", cfg.NewsProbability)
		}

		for key, def := range durationEnvKeys {
			want := def
			if durStrs[key] != "" {
				want, _ = time.ParseDuration(durStrs[key])
			}
			if got := durationField(cfg, key); got != want {
				t.Fatalf("%s = %v, want %v (env=%q)", key, got, want, durStrs[key])
			}
		}
	})
}

// Property: a LOG_LEVEL outside the accepted set is always rejected.
func TestProperty_InvalidLogLevelReturnsError(t *testing.T) {
	t.Cleanup(unsetAllConfigEnv)
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		invalid := rapid.StringMatching(`[a-z]{1,20}`).Filter(func(s string) bool {
			for _, v := range validLogLevels {
				if s == v {
					return false
				}
			}
			return true
		}).Draw(t, "invalidLevel")

		os.Setenv("LOG_LEVEL", invalid)

		if _, err := Load(); err == nil {
			t.Fatalf("Load() should return error for invalid LOG_LEVEL %q", invalid)
		}
	})
}

// Property: probabilities outside [0, 1] are rejected.
func TestProperty_NewsProbabilityOutOfRange(t *testing.T) {
	t.Cleanup(unsetAllConfigEnv)
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		p := rapid.OneOf(
			rapid.Float64Range(-1000, -0.0001),
			rapid.Float64Range(1.0001, 1000),
		).Draw(t, "probability")
		os.Setenv("NEWS_PROBABILITY", fmt.Sprintf("%g", p))

		if _, err := Load(); err == nil {
			t.Fatalf("Load() should reject NEWS_PROBABILITY %g", p)
		}
	})
}

// Property: non-positive update, tick, and back-off intervals are rejected.
func TestProperty_NonPositiveLoopIntervals(t *testing.T) {
	t.Cleanup(unsetAllConfigEnv)
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		key := rapid.SampledFrom([]string{"UPDATE_INTERVAL", "TICK_INTERVAL", "ERROR_BACKOFF"}).Draw(t, "key")
		secs := rapid.IntRange(-600, 0).Draw(t, "seconds")
		os.Setenv(key, fmt.Sprintf("%ds", secs))

		if _, err := Load(); err == nil {
			t.Fatalf("Load() should reject %s=%ds", key, secs)
		}
	})
}
