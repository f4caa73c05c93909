package handlers

import (
	"context"
	"testing"

	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoModule struct{}

func (echoModule) Register(r *Registry) {
	r.RegisterFunc("echo", func(ctx context.Context, ec *model.ExecutionContext) (any, error) {
		return ec.Input, nil
	})
}

func TestRegistry(t *testing.T) {
	r := New(echoModule{})
	r.RegisterHandler("noop", &RegisteredHandler{
		Description: "does nothing",
		Fn:          Func(func(context.Context, *model.ExecutionContext) (any, error) { return nil, nil }),
	})

	assert.Equal(t, []string{"echo", "noop"}, r.Types())

	h, ok := r.Lookup("echo")
	require.True(t, ok)
	out, err := h.Fn.Execute(context.Background(), &model.ExecutionContext{Input: map[string]any{"default": 1}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"default": 1}, out)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistry_PanicsOnDuplicate(t *testing.T) {
	r := New(echoModule{})
	assert.PanicsWithValue(t, "handler for node type 'echo' already registered", func() {
		echoModule{}.Register(r)
	})
	assert.Panics(t, func() { r.RegisterHandler("empty", &RegisteredHandler{}) })
}

func TestReportProgress(t *testing.T) {
	// Outside of a run it is a no-op.
	ReportProgress(context.Background(), 50)

	var got []float64
	ctx := WithProgress(context.Background(), func(p float64) { got = append(got, p) })
	ReportProgress(ctx, 10)
	ReportProgress(ctx, 90)
	assert.Equal(t, []float64{10, 90}, got)
}

func TestDecodeParams(t *testing.T) {
	var p struct {
		URL     string  `json:"url"`
		Retries int     `json:"retries"`
		Factor  float64 `json:"factor"`
	}
	ec := &model.ExecutionContext{NodeID: "n", Parameters: map[string]any{"url": "http://x", "retries": 3.0, "factor": 1.5, "extra": true}}

	require.NoError(t, DecodeParams(ec, &p))
	assert.Equal(t, "http://x", p.URL)
	assert.Equal(t, 3, p.Retries)
	assert.Equal(t, 1.5, p.Factor)

	ec.Parameters = map[string]any{"retries": "three"}
	err := DecodeParams(ec, &p)
	assert.Equal(t, model.CodeInvalidArgument, model.CodeOf(err))
}

func TestDecodeParams_Required(t *testing.T) {
	type params struct {
		URL     string `json:"url" validate:"required"`
		Retries int    `json:"retries,omitempty"`
		Mode    string `json:"mode" validate:"omitempty,oneof=fast slow"`
	}
	tests := []struct {
		name    string
		params  map[string]any
		wantErr string
	}{
		{"present", map[string]any{"url": "http://x"}, ""},
		{"no parameters", nil, `missing required parameter "url"`},
		{"missing", map[string]any{"retries": 2.0}, `missing required parameter "url"`},
		{"empty", map[string]any{"url": ""}, `missing required parameter "url"`},
		{"out of set", map[string]any{"url": "http://x", "mode": "lazy"}, `invalid parameter "mode": must satisfy oneof=fast slow`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			var p params
			ec := &model.ExecutionContext{NodeID: "n", Parameters: tc.params}

			// --- Act ---
			err := DecodeParams(ec, &p)

			// --- Assert ---
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, model.CodeInvalidArgument, model.CodeOf(err))
			assert.ErrorContains(t, err, tc.wantErr)
			var me *model.Error
			require.ErrorAs(t, err, &me)
			assert.Equal(t, "n", me.NodeID)
		})
	}
}

func TestDecodeParams_NonStructTarget(t *testing.T) {
	var m map[string]any
	ec := &model.ExecutionContext{Parameters: map[string]any{"a": 1.0}}

	require.NoError(t, DecodeParams(ec, &m))
	assert.Equal(t, map[string]any{"a": 1.0}, m)
}

func TestDefaultInput(t *testing.T) {
	assert.Equal(t, 5, DefaultInput(&model.ExecutionContext{Input: map[string]any{"default": 5, "x": 1}}))
	assert.Equal(t, map[string]any{"x": 1}, DefaultInput(&model.ExecutionContext{Input: map[string]any{"x": 1}}))
	assert.Nil(t, DefaultInput(&model.ExecutionContext{}))
}
