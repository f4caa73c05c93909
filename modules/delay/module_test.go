package delay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/model"
)

func TestOnRunDelay(t *testing.T) {
	// --- Arrange ---
	var mu sync.Mutex
	var reports []float64
	ctx := handlers.WithProgress(context.Background(), func(pct float64) {
		mu.Lock()
		reports = append(reports, pct)
		mu.Unlock()
	})
	ec := &model.ExecutionContext{Input: map[string]any{"default": "x"}, Parameters: map[string]any{"ms": 50}}

	// --- Act ---
	start := time.Now()
	out, err := OnRunDelay(ctx, ec)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "x", out)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reports, steps)
	assert.IsNonDecreasing(t, reports)
	assert.Equal(t, 100.0, reports[len(reports)-1])
}

func TestOnRunDelay_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := OnRunDelay(ctx, &model.ExecutionContext{Parameters: map[string]any{"ms": 5000}})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOnRunDelay_Negative(t *testing.T) {
	_, err := OnRunDelay(context.Background(), &model.ExecutionContext{Parameters: map[string]any{"ms": -1}})
	assert.Equal(t, model.CodeInvalidArgument, model.CodeOf(err))
}
