package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeEnvFile собирает временный .env.local с заданными строками.
func writeEnvFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env.local")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

// clearEnv снимает переменные, которые тест мог унаследовать от окружения.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"API_ID", "API_HASH", "SESSIONS_DIR", "SESSIONS_FILE", "DOWNLOADS_DIR",
		"TRANSFER_STATE_FILE", "BATCH_SIZE", "HISTORY_LIMIT", "THROTTLE_RPS",
		"LOG_LEVEL", "TEST_DC", "LOG_FILE", "LOG_FILE_LEVEL",
		"LOG_FILE_MAX_SIZE_MB", "LOG_FILE_MAX_BACKUPS", "LOG_FILE_MAX_AGE_DAYS",
		"LOG_FILE_COMPRESS",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t,
		"API_ID=12345",
		"API_HASH=abcdef0123456789",
	)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	env := cfg.Env
	if env.APIID != 12345 {
		t.Errorf("APIID = %d, want 12345", env.APIID)
	}
	if env.APIHash != "abcdef0123456789" {
		t.Errorf("APIHash = %q", env.APIHash)
	}
	if env.SessionsDir != defaultSessionsDir {
		t.Errorf("SessionsDir = %q, want %q", env.SessionsDir, defaultSessionsDir)
	}
	if env.BatchSize != defaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", env.BatchSize, defaultBatchSize)
	}
	if env.HistoryLimit != defaultHistoryLimit {
		t.Errorf("HistoryLimit = %d, want %d", env.HistoryLimit, defaultHistoryLimit)
	}
	if env.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", env.LogLevel, defaultLogLevel)
	}
	if env.TestDC {
		t.Error("TestDC = true, want false")
	}
	// Каждый подставленный дефолт даёт предупреждение.
	if len(cfg.warnings) == 0 {
		t.Error("expected warnings about defaulted values")
	}
}

func TestLoadConfigOverridesAndSanitize(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t,
		"API_ID=777",
		"API_HASH=hash",
		"SESSIONS_DIR=accounts",
		"BATCH_SIZE=10",
		"HISTORY_LIMIT=-5",
		"LOG_LEVEL=verbose",
		"TEST_DC=true",
	)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	env := cfg.Env
	if env.SessionsDir != "accounts" {
		t.Errorf("SessionsDir = %q, want %q", env.SessionsDir, "accounts")
	}
	if env.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", env.BatchSize)
	}
	// Отрицательный лимит не проходит валидатор и заменяется дефолтом.
	if env.HistoryLimit != defaultHistoryLimit {
		t.Errorf("HistoryLimit = %d, want default %d", env.HistoryLimit, defaultHistoryLimit)
	}
	// Неизвестный уровень логирования заменяется дефолтом.
	if env.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want default %q", env.LogLevel, defaultLogLevel)
	}
	if !env.TestDC {
		t.Error("TestDC = false, want true")
	}
}

func TestLoadConfigRequiredValues(t *testing.T) {
	clearEnv(t)

	cases := []struct {
		name  string
		lines []string
	}{
		{name: "missingAPIID", lines: []string{"API_HASH=hash"}},
		{name: "missingAPIHash", lines: []string{"API_ID=1"}},
		{name: "badAPIID", lines: []string{"API_ID=not-a-number", "API_HASH=hash"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			path := writeEnvFile(t, tc.lines...)
			if _, err := loadConfig(path); err == nil {
				t.Fatal("loadConfig() expected error, got nil")
			}
		})
	}
}
