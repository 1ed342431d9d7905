package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/websoft9/agentbridge/internal/config"
)

func testConfig(t *testing.T) *config.File {
	t.Helper()
	dir := t.TempDir()
	return &config.File{
		General: config.General{LogLevel: "info"},
		Sections: []config.Section{
			{
				Name: "local-agent",
				Type: config.TypeUnix,
				Role: config.RoleListener,
				Path: filepath.Join(dir, "agent.sock"),
			},
			{
				Name: "windows-agent",
				Type: config.TypeNamedPipe,
				Role: config.RoleClient,
				Path: `\\.\pipe\openssh-ssh-agent`,
			},
		},
	}
}

func TestBuildRequiresAtLeastOneClient(t *testing.T) {
	f := &config.File{
		General: config.General{LogLevel: "info"},
		Sections: []config.Section{
			{Name: "only-listener", Type: config.TypeUnix, Role: config.RoleListener, Path: "/tmp/x.sock"},
		},
	}
	if _, err := Build(f); err == nil {
		t.Fatal("expected error when no client section is configured")
	}
}

func TestBuildSucceedsWithListenerAndClient(t *testing.T) {
	o, err := Build(testConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(o.listeners) != 1 {
		t.Fatalf("expected 1 listener, got %d", len(o.listeners))
	}
}

func TestOrchestratorStartsAndStopsCleanly(t *testing.T) {
	o, err := Build(testConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	// give the listener goroutine a moment to enter its accept loop.
	time.Sleep(50 * time.Millisecond)
	o.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not shut down after Stop")
	}
}
