package configwatcher

import (
	"context"
	"exam_prep_backend/internal/config"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `server:
  port: "8080"
  mode: test
attempt:
  default_duration_seconds: %d
`

func writeConfig(t *testing.T, path string, seconds int) {
	t.Helper()
	content := []byte(fmt.Sprintf(baseConfig, seconds))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestWatchConfigReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, 3600)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *config.Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- WatchConfig(ctx, path, func(cfg *config.Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Give the watcher time to register before touching the file.
	time.Sleep(200 * time.Millisecond)
	writeConfig(t, path, 900)

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 900, cfg.Attempt.DefaultDurationSeconds)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchConfigIgnoresInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, 3600)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	calls := make(chan struct{}, 4)
	go WatchConfig(ctx, path, func(*config.Config) { calls <- struct{}{} })

	time.Sleep(200 * time.Millisecond)
	writeConfig(t, path, -1)

	select {
	case <-calls:
		t.Fatal("invalid config must not be applied")
	case <-time.After(2 * time.Second):
	}
}
