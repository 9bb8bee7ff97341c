package config

import (
	"log/slog"
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	// Clear any env vars that might interfere.
	for _, env := range []string{
		"CALLD_HTTP_ADDR", "CALLD_HTTP_PORT", "CALLD_LOG_LEVEL",
		"CALLD_ARI_URL", "CALLD_ARI_APPLICATION", "CALLD_AMQP_URL",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	cfg, err := load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPAddr != defaultHTTPAddr {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, defaultHTTPAddr)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.ARIURL != defaultARIURL {
		t.Errorf("ARIURL = %q, want %q", cfg.ARIURL, defaultARIURL)
	}
	if cfg.ARIApplication != defaultARIApplication {
		t.Errorf("ARIApplication = %q, want %q", cfg.ARIApplication, defaultARIApplication)
	}
	if cfg.AMQPExchange != defaultAMQPExchange {
		t.Errorf("AMQPExchange = %q, want %q", cfg.AMQPExchange, defaultAMQPExchange)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
}

func TestEnvVarOverride(t *testing.T) {
	t.Setenv("CALLD_HTTP_PORT", "9090")
	t.Setenv("CALLD_ARI_PASSWORD", "secret")
	t.Setenv("CALLD_LOG_LEVEL", "debug")

	cfg, err := load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.ARIPassword != "secret" {
		t.Errorf("ARIPassword = %q, want secret", cfg.ARIPassword)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	// CLI flags should override env vars.
	t.Setenv("CALLD_HTTP_PORT", "9090")
	t.Setenv("CALLD_LOG_LEVEL", "debug")

	cfg, err := load([]string{"--http-port", "3000", "--log-level", "warn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	_, err := load([]string{"--http-port", "99999"})
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	_, err := load([]string{"--log-level", "verbose"})
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateEmptyARIApplication(t *testing.T) {
	_, err := load([]string{"--ari-application", ""})
	if err == nil {
		t.Fatal("expected error for empty ari-application, got nil")
	}
}

func TestListenAddr(t *testing.T) {
	cfg := &Config{HTTPAddr: "127.0.0.1", HTTPPort: 9500}
	if got := cfg.ListenAddr(); got != "127.0.0.1:9500" {
		t.Errorf("ListenAddr() = %q, want %q", got, "127.0.0.1:9500")
	}
}

func TestJWTSecretBytes(t *testing.T) {
	t.Run("generated when empty", func(t *testing.T) {
		cfg := &Config{}
		key, err := cfg.JWTSecretBytes()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(key) != 32 {
			t.Errorf("generated key length = %d, want 32", len(key))
		}
		if cfg.JWTSecret == "" {
			t.Error("generated key was not stored back in the config")
		}
	})

	t.Run("rejects short key", func(t *testing.T) {
		cfg := &Config{JWTSecret: "abcd"}
		if _, err := cfg.JWTSecretBytes(); err == nil {
			t.Fatal("expected error for short key, got nil")
		}
	})

	t.Run("rejects non-hex key", func(t *testing.T) {
		cfg := &Config{JWTSecret: "zz"}
		if _, err := cfg.JWTSecretBytes(); err == nil {
			t.Fatal("expected error for non-hex key, got nil")
		}
	})
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
