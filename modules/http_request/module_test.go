package http_request

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/model"
)

func TestOnRunHttpRequest(t *testing.T) {
	// --- Arrange ---
	var gotMethod, gotBody, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Token")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	m := &Module{}
	handlers.New(m)
	ec := &model.ExecutionContext{NodeID: "req", Parameters: map[string]any{
		"url":     srv.URL,
		"method":  "post",
		"headers": map[string]any{"X-Token": "secret"},
		"body":    map[string]any{"n": 1},
	}}

	// --- Act ---
	out, err := m.OnRunHttpRequest(context.Background(), ec)

	// --- Assert ---
	require.NoError(t, err)
	res := out.(map[string]any)
	assert.Equal(t, http.StatusOK, res["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, res["json"])
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "secret", gotHeader)
	assert.JSONEq(t, `{"n":1}`, gotBody)
}

func TestOnRunHttpRequest_URLFromInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer srv.Close()
	m := &Module{Client: srv.Client()}

	out, err := m.OnRunHttpRequest(context.Background(), &model.ExecutionContext{NodeID: "req", Input: map[string]any{"url": srv.URL}})
	require.NoError(t, err)
	res := out.(map[string]any)
	assert.Equal(t, http.StatusTeapot, res["status_code"])
	assert.Equal(t, "short and stout", res["body"])
	assert.NotContains(t, res, "json")

	_, err = m.OnRunHttpRequest(context.Background(), &model.ExecutionContext{
		NodeID:     "req",
		Parameters: map[string]any{"url": srv.URL, "fail_on_status": true},
	})
	assert.Equal(t, model.CodeNodeExecution, model.CodeOf(err))
}

func TestOnRunHttpRequest_InvalidParams(t *testing.T) {
	m := &Module{Client: NewClient()}
	tests := []map[string]any{
		nil,
		{"url": "http://127.0.0.1", "timeout": "later"},
	}
	for _, params := range tests {
		_, err := m.OnRunHttpRequest(context.Background(), &model.ExecutionContext{NodeID: "req", Parameters: params})
		assert.Equal(t, model.CodeInvalidArgument, model.CodeOf(err))
	}
}

func TestOnRunHttpRequest_MissingURL(t *testing.T) {
	m := &Module{Client: NewClient()}

	_, err := m.OnRunHttpRequest(context.Background(), &model.ExecutionContext{
		NodeID:     "req",
		Parameters: map[string]any{"method": "POST"},
	})

	require.Error(t, err)
	assert.Equal(t, model.CodeInvalidArgument, model.CodeOf(err))
	assert.ErrorContains(t, err, `missing required parameter "url"`)
}
