package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	leaf := func(id string) Node { return NewLeaf(id, "noop", nil) }

	tests := []struct {
		name     string
		node     Node
		wantCode Code
	}{
		{name: "valid leaf", node: leaf("a")},
		{name: "leaf without type", node: &Leaf{Meta: Meta{ID: "a"}}, wantCode: CodeInvalidGraph},
		{name: "empty id", node: leaf(""), wantCode: CodeInvalidGraph},
		{
			name: "valid group",
			node: NewGroup("root", []Node{leaf("a"), leaf("b")}, []Edge{Connect("a", "b")}),
		},
		{
			name:     "duplicate ids",
			node:     NewGroup("root", []Node{leaf("a"), leaf("a")}, nil),
			wantCode: CodeInvalidGraph,
		},
		{
			name:     "dangling edge",
			node:     NewGroup("root", []Node{leaf("a")}, []Edge{Connect("a", "missing")}),
			wantCode: CodeInvalidGraph,
		},
		{
			name:     "self loop",
			node:     NewGroup("root", []Node{leaf("a")}, []Edge{Connect("a", "a")}),
			wantCode: CodeCycleDetected,
		},
		{
			name: "edge crossing into nested group",
			node: NewGroup("root", []Node{
				leaf("a"),
				NewGroup("inner", []Node{leaf("b")}, nil),
			}, []Edge{Connect("a", "b")}),
			wantCode: CodeInvalidGraph,
		},
		{
			name: "invalid nested child",
			node: NewGroup("root", []Node{
				NewGroup("inner", []Node{leaf("b"), leaf("b")}, nil),
			}, nil),
			wantCode: CodeInvalidGraph,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.node)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, CodeOf(err))
		})
	}
}

func TestGroupHelpers(t *testing.T) {
	g := NewGroup("root",
		[]Node{NewLeaf("a", "x", nil), NewLeaf("b", "x", nil), NewLeaf("c", "x", nil)},
		[]Edge{Connect("a", "c"), {Source: "b", Target: "c", TargetHandle: "right"}},
	)

	in := g.Incoming("c")
	require.Len(t, in, 2)
	assert.Equal(t, DefaultHandle, in[0].TargetPort())
	assert.Equal(t, "right", in[1].TargetPort())
	assert.Equal(t, DefaultHandle, in[1].SourcePort())
	assert.Equal(t, []string{"c"}, g.Sinks())

	child, ok := g.Child("b")
	require.True(t, ok)
	assert.Equal(t, "b", child.NodeID())
	_, ok = g.Child("zzz")
	assert.False(t, ok)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeTimeout, CodeOf(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.Equal(t, CodeCancelled, CodeOf(context.Canceled))
	assert.Equal(t, CodeExecution, CodeOf(errors.New("boom")))

	coded := fmt.Errorf("outer: %w", NewError(CodeRateLimitExceeded, "", "full"))
	assert.Equal(t, CodeRateLimitExceeded, CodeOf(coded))
	assert.True(t, errors.Is(coded, &Error{Code: CodeRateLimitExceeded}))
	assert.False(t, errors.Is(coded, &Error{Code: CodeTimeout}))
}

func TestWrapKeepsExistingCode(t *testing.T) {
	inner := NewError(CodeNodePanic, "", "panic")
	wrapped := Wrap(CodeExecution, "n1", inner)

	assert.Equal(t, CodeNodePanic, wrapped.Code)
	assert.Equal(t, "n1", wrapped.NodeID)
	assert.Equal(t, "", inner.NodeID, "the original error must not be mutated")
	assert.Nil(t, Wrap(CodeExecution, "n1", nil))
}

func TestDeriveInheritsAndOverrides(t *testing.T) {
	parent := &ExecutionContext{
		ExecutionID: "exec-1",
		Variables:   map[string]any{"env": "prod", "region": "eu"},
		Debug:       &Debug{SimulateError: &SimulateError{NodeID: "x"}},
		SlowMo:      10 * time.Millisecond,
		Control:     NewRunControl(),
	}

	child := parent.Derive("n1", map[string]any{"default": 1}, nil, map[string]any{"region": "us"})

	assert.Equal(t, "exec-1", child.ExecutionID)
	assert.Equal(t, "n1", child.NodeID)
	assert.Same(t, parent, child.Parent)
	assert.Same(t, parent.Control, child.Control)
	assert.Same(t, parent.Debug, child.Debug)
	assert.Equal(t, parent.SlowMo, child.SlowMo)
	assert.Equal(t, map[string]any{"env": "prod", "region": "us"}, child.Variables)
	assert.Equal(t, "eu", parent.Variables["region"], "the parent variables must not change")

	plain := parent.Derive("n2", nil, nil, nil)
	assert.Equal(t, parent.Variables, plain.Variables)
}

func TestDebugDirectives(t *testing.T) {
	var nilDebug *Debug
	assert.Nil(t, nilDebug.ErrorFor("a"))

	d := &Debug{
		SimulateError:       &SimulateError{NodeID: "a", ErrorType: "NETWORK"},
		SimulateLongRunning: &SimulateLongRunning{NodeID: "b", DelayMs: 5},
	}
	assert.NotNil(t, d.ErrorFor("a"))
	assert.Nil(t, d.ErrorFor("b"))
	assert.NotNil(t, d.StallFor("b"))
	assert.Nil(t, d.StallFor("a"))
}

func TestRunControl(t *testing.T) {
	t.Run("pause blocks until resume", func(t *testing.T) {
		// --- Arrange ---
		c := NewRunControl()
		c.Pause()
		done := make(chan error, 1)

		// --- Act ---
		go func() { done <- c.Checkpoint(context.Background()) }()

		// --- Assert ---
		select {
		case <-done:
			t.Fatal("checkpoint returned while paused")
		case <-time.After(30 * time.Millisecond):
		}
		c.Resume()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("checkpoint did not return after resume")
		}
	})

	t.Run("cancel releases a paused waiter", func(t *testing.T) {
		c := NewRunControl()
		c.Pause()
		done := make(chan error, 1)
		go func() { done <- c.Checkpoint(context.Background()) }()

		c.Cancel()
		c.Cancel()

		select {
		case err := <-done:
			assert.Equal(t, CodeCancelled, CodeOf(err))
		case <-time.After(time.Second):
			t.Fatal("checkpoint did not return after cancel")
		}
		assert.True(t, c.Cancelled())
		assert.False(t, c.Paused())
		<-c.Done()
	})

	t.Run("nil control only observes the context", func(t *testing.T) {
		var c *RunControl
		require.NoError(t, c.Checkpoint(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, c.Checkpoint(ctx), context.Canceled)
	})
}

func TestRecorderTimestampsNeverDecrease(t *testing.T) {
	base := time.Now()
	clock := []time.Time{base, base.Add(-time.Second), base.Add(time.Millisecond)}
	r := NewRecorder("exec")
	i := 0
	r.now = func() time.Time {
		ts := clock[i]
		i++
		return ts
	}

	r.Record(TraceEvent{Type: EventExecutionStarted})
	r.Record(TraceEvent{Type: EventNodeStarted, NodeID: "a"})
	r.Record(TraceEvent{Type: EventNodeCompleted, NodeID: "a"})

	tr := r.Trace()
	require.Len(t, tr.Events, 3)
	assert.Equal(t, "exec", tr.ExecutionID)
	assert.Equal(t, base, tr.Events[1].Timestamp)
	for j := 1; j < len(tr.Events); j++ {
		assert.False(t, tr.Events[j].Timestamp.Before(tr.Events[j-1].Timestamp))
	}
}

func TestUnmarshalNode(t *testing.T) {
	// --- Arrange ---
	doc := `{
		"id": "root",
		"parallel": true,
		"variables": {"region": "eu"},
		"nodes": [
			{"id": "a", "type": "math", "parameters": {"op": "double"}, "weight": 2},
			{"id": "g", "nodes": [{"id": "inner", "type": "print"}], "edges": []}
		],
		"edges": [{"source": "a", "target": "g", "targetHandle": "value"}]
	}`

	// --- Act ---
	n, err := UnmarshalNode([]byte(doc))

	// --- Assert ---
	require.NoError(t, err)
	root, ok := n.(*Group)
	require.True(t, ok)
	assert.Equal(t, GroupType, root.Type)
	assert.True(t, root.Parallel)
	assert.Equal(t, "eu", root.Variables["region"])
	require.Len(t, root.Nodes, 2)

	a, ok := root.Nodes[0].(*Leaf)
	require.True(t, ok)
	assert.Equal(t, "math", a.Type)
	assert.Equal(t, 2.0, a.Weight)
	assert.Equal(t, "double", a.Parameters["op"])

	g, ok := root.Nodes[1].(*Group)
	require.True(t, ok)
	assert.Equal(t, "inner", g.Nodes[0].NodeID())
	assert.Equal(t, "value", root.Edges[0].TargetPort())
	assert.NoError(t, Validate(n))
}

func TestUnmarshalNodeRejectsLeafEdges(t *testing.T) {
	_, err := UnmarshalNode([]byte(`{"id":"x","type":"print","edges":[{"source":"a","target":"b"}]}`))
	assert.Equal(t, CodeInvalidGraph, CodeOf(err))

	_, err = UnmarshalNode([]byte(`{"id":`))
	assert.Error(t, err)
}

func TestNodeJSONRoundTrip(t *testing.T) {
	in := NewGroup("root", []Node{NewLeaf("a", "print", nil)}, nil)

	raw, err := json.Marshal(NodeJSON{Node: in})
	require.NoError(t, err)
	var out NodeJSON
	require.NoError(t, json.Unmarshal(raw, &out))

	g, ok := out.Node.(*Group)
	require.True(t, ok)
	assert.Equal(t, "a", g.Nodes[0].NodeID())
	_, isLeaf := g.Nodes[0].(*Leaf)
	assert.True(t, isLeaf)
}
