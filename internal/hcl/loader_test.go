package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/nodegrid/internal/model"
)

const pipeline = `
blueprint "pipeline" {
  description = "double then branch"
  variables   = { threshold = 10 }

  node "double" {
    type       = "math"
    parameters = { operation = "multiply", operand = 2 }
    weight     = 2
    timeout    = "5s"
  }

  node "big" {
    condition = input.default > variables.threshold
  }

  node "fanout" {
    parallel        = true
    max_concurrency = 2
    variables       = { label = "inner" }

    node "left" {
      type    = "print"
      timeout = 1500
    }
    node "right" {
      type = "print"
    }
  }

  edge {
    source = "double"
    target = "big"
  }
  edge {
    source        = "big"
    source_handle = "result"
    target        = "fanout"
    target_handle = "flag"
  }
}
`

func TestParse(t *testing.T) {
	// --- Act ---
	bps, err := Parse(context.Background(), []byte(pipeline), "pipeline.hcl")

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, bps, 1)
	bp := bps[0]
	assert.Equal(t, "pipeline", bp.ID)
	assert.Equal(t, "double then branch", bp.Description)
	assert.Equal(t, "pipeline.hcl", bp.File)

	root := bp.Root
	assert.Equal(t, "pipeline", root.ID)
	assert.Equal(t, map[string]any{"threshold": 10.0}, root.Variables)
	require.Len(t, root.Nodes, 3)

	double, ok := root.Nodes[0].(*model.Leaf)
	require.True(t, ok)
	assert.Equal(t, "math", double.Type)
	assert.Equal(t, map[string]any{"operation": "multiply", "operand": 2.0}, double.Parameters)
	assert.Equal(t, 2.0, double.Weight)
	assert.Equal(t, 5*time.Second, double.Timeout)

	big, ok := root.Nodes[1].(*model.Leaf)
	require.True(t, ok)
	assert.Equal(t, ConditionType, big.Type)
	assert.Equal(t, "input.default > variables.threshold", big.Parameters["expression"])

	fanout, ok := root.Nodes[2].(*model.Group)
	require.True(t, ok)
	assert.Equal(t, model.GroupType, fanout.Type)
	assert.True(t, fanout.Parallel)
	assert.Equal(t, 2, fanout.MaxConcurrency)
	assert.Equal(t, map[string]any{"label": "inner"}, fanout.Variables)
	require.Len(t, fanout.Nodes, 2)
	assert.Equal(t, 1500*time.Millisecond, fanout.Nodes[0].Base().Timeout)

	require.Len(t, root.Edges, 2)
	assert.Equal(t, model.Connect("double", "big"), root.Edges[0])
	assert.Equal(t, "result", root.Edges[1].SourcePort())
	assert.Equal(t, "flag", root.Edges[1].TargetPort())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `blueprint "x" {`},
		{"unknown attribute", `blueprint "x" { colour = "red" }`},
		{"missing type", `blueprint "x" {
  node "a" {
  }
}`},
		{"parameters not an object", `blueprint "x" {
  node "a" {
    type       = "t"
    parameters = "p"
  }
}`},
		{"bad timeout", `blueprint "x" {
  node "a" {
    type    = "t"
    timeout = "soon"
  }
}`},
		{"condition outside grammar", `blueprint "x" {
  node "a" {
    condition = env.HOME == ""
  }
}`},
		{"edge to unknown node", `blueprint "x" {
  node "a" { type = "t" }
  edge {
    source = "a"
    target = "b"
  }
}`},
		{"edges inside leaf", `blueprint "x" {
  node "a" {
    type = "t"
    edge {
      source = "a"
      target = "a"
    }
  }
}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(context.Background(), []byte(tc.src), "bad.hcl")
			require.Error(t, err)
			assert.Equal(t, model.CodeInvalidGraph, model.CodeOf(err))
		})
	}
}

func oneNode(id string) string {
	return `blueprint "` + id + `" {
  node "n" {
    type = "print"
  }
}
`
}

func TestLoad(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}
	write("a.hcl", oneNode("one"))
	write("nested/b.hcl", oneNode("two"))
	write("notes.txt", "not a blueprint")

	// --- Act ---
	bps, err := Load(context.Background(), dir)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, bps, 2)
	assert.Equal(t, "one", bps[0].ID)
	assert.Equal(t, "two", bps[1].ID)

	t.Run("duplicate ids across files", func(t *testing.T) {
		write("c.hcl", oneNode("one"))
		_, err := Load(context.Background(), dir)
		assert.ErrorContains(t, err, "blueprint 'one' is defined in both")
	})
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "x.hcl")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	other := filepath.Join(dir, "x.json")
	require.NoError(t, os.WriteFile(other, nil, 0o644))

	got, err := ResolvePath(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, []string{file}, got)

	_, err = ResolvePath(context.Background(), other)
	assert.ErrorContains(t, err, "not an .hcl file")

	_, err = ResolvePath(context.Background(), filepath.Join(dir, "missing"))
	assert.ErrorContains(t, err, "not found")
}
