package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnvOr(t *testing.T) {
	t.Setenv("CONFIG_TEST_SET", "from-env")

	if got := EnvOr("CONFIG_TEST_SET", "fallback"); got != "from-env" {
		t.Errorf("EnvOr() = %q, want %q", got, "from-env")
	}
	if got := EnvOr("CONFIG_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("EnvOr() = %q, want %q", got, "fallback")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `# database settings
POSTGRES_DSN=postgres://localhost:5432/indexer

export ETH_RPC_URL="https://rpc.example.org"
CLICKHOUSE_DSN='clickhouse://localhost:9000/indexer'
MALFORMED LINE WITHOUT EQUALS
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	for _, key := range []string{"POSTGRES_DSN", "ETH_RPC_URL", "CLICKHOUSE_DSN"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error: %v", err)
	}

	if got := os.Getenv("POSTGRES_DSN"); got != "postgres://localhost:5432/indexer" {
		t.Errorf("POSTGRES_DSN = %q", got)
	}
	if got := os.Getenv("ETH_RPC_URL"); got != "https://rpc.example.org" {
		t.Errorf("ETH_RPC_URL = %q, quotes should be stripped", got)
	}
	if got := os.Getenv("CLICKHOUSE_DSN"); got != "clickhouse://localhost:9000/indexer" {
		t.Errorf("CLICKHOUSE_DSN = %q, quotes should be stripped", got)
	}
}

func TestLoadDotEnv_ExistingEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("POSTGRES_DSN=from-file\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv("POSTGRES_DSN", "from-env")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error: %v", err)
	}
	if got := os.Getenv("POSTGRES_DSN"); got != "from-env" {
		t.Errorf("POSTGRES_DSN = %q, existing environment should win", got)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "no-such.env")); err != nil {
		t.Errorf("LoadDotEnv() on missing file: %v", err)
	}
}
