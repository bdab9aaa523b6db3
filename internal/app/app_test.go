package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chessinsight/internal/config"
)

func TestLoadOrInitAdminToken(t *testing.T) {
	dir := t.TempDir()

	token, created, err := loadOrInitAdminToken(dir)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !created || len(token) != 64 {
		t.Fatalf("token = %q created = %v", token, created)
	}

	again, created, err := loadOrInitAdminToken(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if created || again != token {
		t.Fatalf("reload = %q created = %v, want %q", again, created, token)
	}

	if err := os.WriteFile(filepath.Join(dir, adminTokenFile), []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	fresh, created, err := loadOrInitAdminToken(dir)
	if err != nil {
		t.Fatalf("blank file: %v", err)
	}
	if !created || fresh == token {
		t.Fatalf("blank file should produce a new token")
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Database.URL = filepath.Join(cfg.DataDir, "app.sqlite")
	cfg.Lichess.TokenFile = ""
	cfg.Lichess.BaseURL = "http://127.0.0.1:1"
	return cfg
}

func TestNewServesHealthAndMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdminToken = "fixed"

	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if a.AdminToken() != "fixed" || a.AdminTokenCreated() {
		t.Errorf("admin token = %q created = %v", a.AdminToken(), a.AdminTokenCreated())
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, adminTokenFile)); !os.IsNotExist(err) {
		t.Errorf("configured token should not write a token file")
	}

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

func TestNewCreatesAdminToken(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if !a.AdminTokenCreated() || a.AdminToken() == "" {
		t.Fatalf("expected a generated admin token")
	}
	data, err := os.ReadFile(filepath.Join(cfg.DataDir, adminTokenFile))
	if err != nil {
		t.Fatalf("read token file: %v", err)
	}
	if strings.TrimSpace(string(data)) != a.AdminToken() {
		t.Errorf("token file does not match")
	}
}

func TestStartAndClose(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a.Start(context.Background())
	a.Close()
	// second close is a no-op
	a.Close()
}
