package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
)

func TestSafeBuffer_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var buf SafeBuffer
	var wg sync.WaitGroup

	// --- Act ---
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Fprintf(&buf, "%02d\n", i)
		}()
	}
	wg.Wait()

	// --- Assert ---
	require.Len(t, buf.String(), 150)
}

func TestContext_CarriesLoggerAndIsCancelled(t *testing.T) {
	var ctx interface{ Err() error }

	t.Run("inner", func(t *testing.T) {
		c := Context(t)
		require.NotNil(t, ctxlog.FromContext(c))
		require.NoError(t, c.Err())
		ctx = c
	})

	require.Error(t, ctx.Err())
}
