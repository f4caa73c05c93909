package inmemorystore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/specialistvlad/nodegrid/internal/nodestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plan builds a single-batch plan with the given weights.
func plan(weights map[string]float64, order ...string) *model.ExecutionGraph {
	g := &model.ExecutionGraph{
		ExecutionOrder: [][]string{order},
		Weights:        weights,
	}
	for _, w := range weights {
		g.TotalWeight += w
	}
	return g
}

func newStore(t *testing.T, g *model.ExecutionGraph) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.InitializeGraph(context.Background(), g))
	return s
}

func TestInitializeGraph(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, plan(map[string]float64{"a": 1, "b": 1}, "a", "b"))

	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithState(nodestore.StateCompleted)))
	require.NoError(t, s.SetOutput(ctx, "a", 42))
	assert.Equal(t, 50.0, s.GetState(ctx).OverallProgress)

	// A second run starts from a clean slate.
	require.NoError(t, s.InitializeGraph(ctx, plan(map[string]float64{"a": 1, "b": 1}, "a", "b")))

	snap := s.GetState(ctx)
	assert.Zero(t, snap.OverallProgress)
	for id, ns := range snap.Nodes {
		assert.Equal(t, nodestore.StatePending, ns.State, id)
		assert.Zero(t, ns.Progress, id)
	}
	_, ok, err := s.GetOutput(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUninitializedAndUnknownNodes(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.UpdateNodeState(ctx, "a", nodestore.WithProgress(10))
	assert.ErrorIs(t, err, nodestore.ErrNotInitialized)

	require.NoError(t, s.InitializeGraph(ctx, plan(map[string]float64{"a": 1}, "a")))
	err = s.UpdateNodeState(ctx, "ghost", nodestore.WithProgress(10))
	assert.ErrorIs(t, err, nodestore.ErrUnknownNode)
	_, err = s.NodeState(ctx, "ghost")
	assert.ErrorIs(t, err, nodestore.ErrUnknownNode)
	assert.Error(t, s.InitializeGraph(ctx, nil))
}

func TestCompletedForcesFullProgress(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, plan(map[string]float64{"a": 1}, "a"))

	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithState(nodestore.StateExecuting)))
	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithState(nodestore.StateCompleted)))

	ns, err := s.NodeState(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, nodestore.NodeState{State: nodestore.StateCompleted, Progress: 100}, ns)
	assert.Equal(t, 100.0, s.GetState(ctx).OverallProgress)
}

func TestProgressNeverDecreases(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, plan(map[string]float64{"a": 1, "b": 3}, "a", "b"))

	require.NoError(t, s.UpdateNodeState(ctx, "b", nodestore.WithProgress(80)))
	require.NoError(t, s.UpdateNodeState(ctx, "b", nodestore.WithProgress(20)))
	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithProgress(150)))
	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithProgress(-5)))

	a, _ := s.NodeState(ctx, "a")
	b, _ := s.NodeState(ctx, "b")
	assert.Equal(t, 100.0, a.Progress)
	assert.Equal(t, 80.0, b.Progress)
	assert.Equal(t, (1*100.0+3*80.0)/4, s.GetState(ctx).OverallProgress)
}

func TestErrorFreezesNode(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, plan(map[string]float64{"a": 1, "b": 1}, "a", "b"))

	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithState(nodestore.StateExecuting)))
	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithProgress(40)))
	errState := nodestore.StateError
	hundred := 100.0
	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.Patch{State: &errState, Progress: &hundred}))
	before := s.GetState(ctx)

	// Further updates are ignored.
	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithProgress(90)))
	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithState(nodestore.StateCompleted)))

	a, err := s.NodeState(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, nodestore.NodeState{State: nodestore.StateError, Progress: 40}, a)
	after := s.GetState(ctx)
	assert.Equal(t, 20.0, after.OverallProgress)
	assert.Equal(t, before.Version, after.Version)

	// The untouched sibling stays pending at 0.
	b, _ := s.NodeState(ctx, "b")
	assert.Equal(t, nodestore.NodeState{State: nodestore.StatePending}, b)
}

func TestSetAndGetOutputAndError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, plan(map[string]float64{"a": 1}, "a"))

	out, ok, err := s.GetOutput(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, out)

	require.NoError(t, s.SetOutput(ctx, "a", map[string]any{"value": 1}))
	out, ok, err = s.GetOutput(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"value": 1}, out)
	assert.Equal(t, map[string]any{"a": map[string]any{"value": 1}}, s.Outputs())

	nodeErr, err := s.GetError(ctx, "a")
	require.NoError(t, err)
	assert.NoError(t, nodeErr)

	require.NoError(t, s.SetError(ctx, "a", errors.New("boom")))
	nodeErr, err = s.GetError(ctx, "a")
	require.NoError(t, err)
	assert.EqualError(t, nodeErr, "boom")
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, plan(map[string]float64{"a": 1}, "a"))

	var mu sync.Mutex
	var seen []nodestore.Snapshot
	unsubscribe := s.Subscribe(func(snap nodestore.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, snap)
	})

	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithProgress(10)))
	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithProgress(10)))
	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithProgress(30)))
	unsubscribe()
	unsubscribe()
	require.NoError(t, s.UpdateNodeState(ctx, "a", nodestore.WithProgress(60)))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2, "no-op updates must not notify")
	assert.Equal(t, 10.0, seen[0].OverallProgress)
	assert.Equal(t, 30.0, seen[1].OverallProgress)
	assert.Greater(t, seen[1].Version, seen[0].Version)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	numGoroutines := 100
	weights := make(map[string]float64, numGoroutines)
	order := make([]string, 0, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		id := fmt.Sprintf("node-%d", i)
		weights[id] = 1
		order = append(order, id)
	}
	s := newStore(t, plan(weights, order...))

	// Notifications may be delivered out of order; the version orders them.
	var mu sync.Mutex
	byVersion := make(map[uint64]float64)
	s.Subscribe(func(snap nodestore.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		byVersion[snap.Version] = snap.OverallProgress
	})

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("node-%d", i)
			for _, p := range []float64{25, 50, 75} {
				if err := s.UpdateNodeState(ctx, id, nodestore.WithProgress(p)); err != nil {
					t.Errorf("update %s: %v", id, err)
				}
			}
			s.SetOutput(ctx, id, i)
			s.UpdateNodeState(ctx, id, nodestore.WithState(nodestore.StateCompleted))
		}(i)
	}
	wg.Wait()

	snap := s.GetState(ctx)
	assert.Equal(t, 100.0, snap.OverallProgress)

	mu.Lock()
	defer mu.Unlock()
	prev := -1.0
	for v := uint64(1); v <= snap.Version; v++ {
		p, ok := byVersion[v]
		if !ok {
			continue
		}
		assert.GreaterOrEqual(t, p, prev, "version %d", v)
		prev = p
	}
	for i := 0; i < numGoroutines; i++ {
		out, ok, err := s.GetOutput(ctx, fmt.Sprintf("node-%d", i))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, out)
	}
}
