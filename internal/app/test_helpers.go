package app

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/registry"
	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest builds an App for system tests: debug logging into a
// SafeBuffer, optionally dumped with GOFECTO_TEST_LOGS=true.
func SetupAppTest(t *testing.T, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, *SafeBuffer) {
	t.Helper()

	logBuffer := &SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp, err := New(logBuffer, cfg, loader, modules...)

	t.Cleanup(func() {
		if os.Getenv("GOFECTO_TEST_LOGS") == "true" {
			t.Logf("--- full log output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	require.NoError(t, err, "app setup failed, logs:\n%s", logBuffer.String())

	return testApp, logBuffer
}
