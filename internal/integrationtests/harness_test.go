package integrationtests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/nodegrid/internal/engine"
	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/hcl"
	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/specialistvlad/nodegrid/internal/testutil"
	"github.com/specialistvlad/nodegrid/internal/transport"
	"github.com/specialistvlad/nodegrid/modules/condition"
	"github.com/specialistvlad/nodegrid/modules/delay"
	"github.com/specialistvlad/nodegrid/modules/env_vars"
	"github.com/specialistvlad/nodegrid/modules/http_request"
	"github.com/specialistvlad/nodegrid/modules/math"
	"github.com/specialistvlad/nodegrid/modules/print"
	"github.com/specialistvlad/nodegrid/modules/remote"
)

// harness is an engine loaded with every bundled module and the blueprints
// parsed from src. Print output is captured in Printed.
type harness struct {
	ctx     context.Context
	Engine  *engine.Engine
	Printed *testutil.SafeBuffer
}

func newHarness(t *testing.T, src string) *harness {
	t.Helper()
	ctx := testutil.Context(t)
	printed := &testutil.SafeBuffer{}
	reg := handlers.New(
		&condition.Module{},
		&delay.Module{},
		&env_vars.Module{},
		&http_request.Module{},
		&math.Module{},
		&print.Module{Out: printed},
		&remote.Module{},
	)

	eng, err := engine.New(ctx, engine.Config{ExecuteTimeout: 10 * time.Second}, reg)
	require.NoError(t, err)
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = eng.GracefulShutdown(shutdownCtx)
	})

	bps, err := hcl.Parse(ctx, []byte(src), t.Name()+".hcl")
	require.NoError(t, err)
	for _, bp := range bps {
		require.NoError(t, eng.RegisterBlueprint(bp.ID, bp.Root))
	}
	return &harness{ctx: ctx, Engine: eng, Printed: printed}
}

func (h *harness) run(blueprint string, input map[string]any) *model.ExecutionResult {
	return h.Engine.Execute(h.ctx, engine.Request{BlueprintID: blueprint, Input: input})
}

// serveWebSocket exposes the engine on a WebSocket endpoint and returns its
// ws:// URL.
func (h *harness) serveWebSocket(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(transport.WebSocketHandler(h.ctx, h.Engine.Router()))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// serveHTTP exposes the engine command API and returns its base URL.
func (h *harness) serveHTTP(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(transport.NewHTTPHandler(h.ctx, h.Engine.Router()))
	t.Cleanup(srv.Close)
	return srv.URL
}

func jsonServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}
