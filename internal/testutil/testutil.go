// Package testutil holds helpers shared by the package tests.
package testutil

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
)

// SafeBuffer is a thread-safe buffer for capturing output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// LogWriter returns stderr when NODEGRID_TEST_LOGS is set and io.Discard
// otherwise.
func LogWriter() io.Writer {
	if os.Getenv("NODEGRID_TEST_LOGS") != "" {
		return os.Stderr
	}
	return io.Discard
}

// Context returns a context carrying a debug logger tagged with the test
// name. It is cancelled when the test finishes.
func Context(t *testing.T) context.Context {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(LogWriter(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger.With("test", t.Name())))
	t.Cleanup(cancel)
	return ctx
}
