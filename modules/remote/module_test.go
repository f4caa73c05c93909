package remote

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/specialistvlad/nodegrid/internal/transport"
)

// newPeer serves an engine channel whose execute command doubles
// input.default for blueprint "double" and fails for any other blueprint.
func newPeer(t *testing.T) *transport.Router {
	t.Helper()
	r := transport.NewRouter()
	r.Handle(transport.EngineChannel, "execute", func(_ context.Context, raw json.RawMessage) (any, error) {
		var args executeArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		if args.BlueprintID != "double" {
			return model.Failed("remote-1", model.NewError(model.CodeBlueprintNotFound, "", "no such blueprint"), 0), nil
		}
		n, _ := args.Input["default"].(float64)
		return &model.ExecutionResult{ExecutionID: "remote-1", Success: true, Data: n * 2, ExecutedNodes: []string{"d"}}, nil
	})
	return r
}

func TestOnRunRemote(t *testing.T) {
	router := newPeer(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		transport string
		handler   func() *httptest.Server
		url       func(*httptest.Server) string
	}{
		{
			name:    "websocket",
			handler: func() *httptest.Server { return httptest.NewServer(transport.WebSocketHandler(ctx, router)) },
			url:     func(s *httptest.Server) string { return "ws" + strings.TrimPrefix(s.URL, "http") },
		},
		{
			name:      "http",
			transport: "http",
			handler:   func() *httptest.Server { return httptest.NewServer(transport.NewHTTPHandler(ctx, router)) },
			url:       func(s *httptest.Server) string { return s.URL },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			srv := tc.handler()
			defer srv.Close()
			m := &Module{}
			params := map[string]any{"url": tc.url(srv), "transport": tc.transport, "blueprint_id": "double", "timeout": "2s"}

			// --- Act ---
			out, err := m.OnRunRemote(ctx, &model.ExecutionContext{NodeID: "r", Input: map[string]any{"default": 21}, Parameters: params})

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, 42.0, out)

			params["blueprint_id"] = "missing"
			_, err = m.OnRunRemote(ctx, &model.ExecutionContext{NodeID: "r", Parameters: params})
			require.Error(t, err)
			assert.Equal(t, model.CodeBlueprintNotFound, model.CodeOf(err))
		})
	}
}

func TestOnRunRemote_Errors(t *testing.T) {
	m := &Module{}
	ctx := context.Background()

	_, err := m.OnRunRemote(ctx, &model.ExecutionContext{NodeID: "r"})
	assert.Equal(t, model.CodeInvalidArgument, model.CodeOf(err))

	_, err = m.OnRunRemote(ctx, &model.ExecutionContext{NodeID: "r", Parameters: map[string]any{"url": "ws://127.0.0.1:1"}})
	assert.ErrorContains(t, err, `missing required parameter "blueprint_id"`)

	_, err = m.OnRunRemote(ctx, &model.ExecutionContext{NodeID: "r", Parameters: map[string]any{
		"url": "ws://127.0.0.1:1", "blueprint_id": "x", "transport": "pigeon",
	}})
	assert.Equal(t, model.CodeInvalidArgument, model.CodeOf(err))

	_, err = m.OnRunRemote(ctx, &model.ExecutionContext{NodeID: "r", Parameters: map[string]any{
		"url": "ws://127.0.0.1:1", "blueprint_id": "x",
	}})
	assert.Equal(t, model.CodePeerUnreachable, model.CodeOf(err))
}
