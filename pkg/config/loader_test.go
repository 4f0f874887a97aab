package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadMergesEnvironmentOverBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: db.internal
  port: 5432
  password: ${DB_SECRET}
closure:
  async_threshold: 100
cache:
  driver: redis
`)
	writeFile(t, dir, "local.yaml", `
db:
  host: localhost
closure:
  async_threshold: 5
`)
	writeFile(t, dir, "secrets.env", "# comment\nDB_SECRET=\"s3cret\"\n")

	t.Setenv("CLOSURE_ASYNC_THRESHOLD", "")
	t.Setenv("DB_HOST", "")

	cfg, err := Load("local", dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.Host != "localhost" {
		t.Errorf("db.host = %q, want localhost", cfg.DB.Host)
	}
	if cfg.DB.Port != 5432 {
		t.Errorf("db.port = %d, want 5432 from base", cfg.DB.Port)
	}
	if cfg.DB.Password != "s3cret" {
		t.Errorf("db.password = %q, want substituted secret", cfg.DB.Password)
	}
	if cfg.Closure.AsyncThreshold != 5 {
		t.Errorf("async_threshold = %d, want 5", cfg.Closure.AsyncThreshold)
	}
	if cfg.Closure.MaxAttempts != 5 {
		t.Errorf("max_attempts default = %d, want 5", cfg.Closure.MaxAttempts)
	}
	if cfg.Server.Port != "8090" {
		t.Errorf("server.port default = %q", cfg.Server.Port)
	}
}

func TestLoadEnvironmentVariablesWin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "closure:\n  async_threshold: 100\n")

	t.Setenv("CLOSURE_ASYNC_THRESHOLD", "42")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load("production", dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Closure.AsyncThreshold != 42 {
		t.Errorf("async_threshold = %d, want 42", cfg.Closure.AsyncThreshold)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("storage.driver = %q, want memory", cfg.Storage.Driver)
	}
}

func TestLoadMissingBase(t *testing.T) {
	if _, err := Load("local", t.TempDir()); err == nil {
		t.Fatal("expected error when base.yaml is missing")
	}
}

func TestMergeMapsIsRecursive(t *testing.T) {
	dst := map[string]interface{}{
		"a": map[string]interface{}{"x": 1, "y": 2},
		"b": "keep",
	}
	src := map[string]interface{}{
		"a": map[string]interface{}{"y": 3},
	}
	got := mergeMaps(dst, src)
	inner := got["a"].(map[string]interface{})
	if inner["x"] != 1 || inner["y"] != 3 {
		t.Fatalf("merged inner = %v", inner)
	}
	if got["b"] != "keep" {
		t.Fatalf("b = %v", got["b"])
	}
}
