package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/config"
	"github.com/matheus3301/chatd/internal/delivery"
	"github.com/matheus3301/chatd/internal/httpapi"
	"github.com/matheus3301/chatd/internal/lock"
	"github.com/matheus3301/chatd/internal/presence"
	"github.com/matheus3301/chatd/internal/room"
	"github.com/matheus3301/chatd/internal/store"
	"github.com/matheus3301/chatd/internal/ws"
)

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.AuthSecret = "test-secret"
	cfg.WebhookSecret = "webhook-secret"
	path := filepath.Join(dir, "chatd.toml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestFxModuleWiring verifies the fx dependency graph resolves without
// errors. ValidateApp checks the graph shape only; no provider runs, so
// no port is bound and no lock is taken.
func TestFxModuleWiring(t *testing.T) {
	path := writeTestConfig(t, t.TempDir())
	if err := fx.ValidateApp(Module(Params{ConfigPath: path})); err != nil {
		t.Fatalf("fx graph invalid: %v", err)
	}
}

// TestDaemonLifecycle composes the daemon's pieces by hand, the same
// way the fx providers do, and exercises the HTTP surface end to end.
func TestDaemonLifecycle(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	lk, err := lock.Acquire(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(dataDir, "chatd.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	logger := zap.NewNop()
	rooms := room.NewRegistry(logger)
	tracker := presence.NewTracker(0)
	verifier := auth.NewVerifier("test-secret")
	engine := delivery.NewEngine(db, rooms, logger)
	live := ws.NewHandler(db, rooms, tracker, verifier, nil, logger)
	api := httpapi.NewServer(db, engine, tracker, verifier, live, "webhook-secret", 50, nil, logger)

	srv, err := NewServer("127.0.0.1:0", api.Router(), logger)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Stop(ctx)
	}()

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", resp.StatusCode)
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}

	// A second daemon on the same data dir must fail fast.
	if _, err := lock.Acquire(dataDir); err == nil {
		t.Error("second lock acquisition succeeded")
	}
}
