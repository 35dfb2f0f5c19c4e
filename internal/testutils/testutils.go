// Package testutils holds helpers shared by package tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/logstore"
)

// ConfigForTests returns a config suitable for in-process tests: an
// in-memory durable log, uploads in a temp dir and cheap bcrypt. Values in
// an optional .env.test at the project root are applied first.
func ConfigForTests(t *testing.T) *config.Config {
	t.Helper()

	if root, ok := projectRoot(); ok {
		if env, err := godotenv.Read(filepath.Join(root, ".env.test")); err == nil {
			for key, value := range env {
				t.Setenv(key, value)
			}
		}
	}

	t.Setenv("HUDDLE_LOG_BACKEND", logstore.BackendMemory)
	t.Setenv("HUDDLE_UPLOAD_DIR", t.TempDir())
	t.Setenv("HUDDLE_BCRYPT_COST", "4")
	t.Setenv("HUDDLE_SESSION_SECRET", "test-secret")

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("failed to build test config: %v", err)
	}
	return cfg
}

// projectRoot finds the directory holding go.mod.
func projectRoot() (string, bool) {
	path, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			return path, true
		}
		if path == filepath.Dir(path) {
			return "", false
		}
		path = filepath.Dir(path)
	}
}
