package print

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/model"
)

func TestPrint(t *testing.T) {
	// --- Arrange ---
	var buf bytes.Buffer
	reg := handlers.New(&Module{Out: &buf})
	h, ok := reg.Lookup(Type)
	require.True(t, ok)
	ec := &model.ExecutionContext{
		NodeID:     "p",
		Input:      map[string]any{"default": 42, "name": "bob"},
		Parameters: map[string]any{"label": "out"},
	}

	// --- Act ---
	out, err := h.Fn.Execute(context.Background(), ec)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, "[out] default = 42\n[out] name = \"bob\"\n", buf.String())
}

func TestPrint_EmptyInput(t *testing.T) {
	var buf bytes.Buffer
	m := &Module{Out: &buf}

	out, err := m.run(context.Background(), &model.ExecutionContext{NodeID: "p"})

	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, "[p] (null)\n", buf.String())
}
