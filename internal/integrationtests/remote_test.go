package integrationtests

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/nodegrid/internal/model"
)

const arithmetic = `
blueprint "arithmetic" {
  node "double" {
    type       = "math"
    parameters = { operation = "multiply", operand = 2 }
  }
  node "inc" {
    type       = "math"
    parameters = { operation = "add", operand = 1 }
  }
  edge {
    source = "double"
    target = "inc"
  }
}
`

func delegating(url, transport, blueprint string) string {
	return fmt.Sprintf(`
blueprint "delegate" {
  node "remote" {
    type = "remote_execute"
    parameters = {
      url          = %q
      transport    = %q
      blueprint_id = %q
      timeout      = "5s"
    }
  }
  node "finish" {
    type       = "math"
    parameters = { operation = "add", operand = 100 }
  }
  edge {
    source = "remote"
    target = "finish"
  }
}
`, url, transport, blueprint)
}

func TestRemote_ExecutesBlueprintOnPeerEngine(t *testing.T) {
	testCases := []struct {
		name      string
		transport string
		serve     func(*harness, *testing.T) string
	}{
		{name: "websocket", transport: "socket", serve: (*harness).serveWebSocket},
		{name: "http", transport: "http", serve: (*harness).serveHTTP},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			server := newHarness(t, arithmetic)
			url := tc.serve(server, t)
			client := newHarness(t, delegating(url, tc.transport, "arithmetic"))

			// --- Act ---
			res := client.run("delegate", map[string]any{"default": 3.0})

			// --- Assert ---
			require.True(t, res.Success, "error: %v", res.Error)
			assert.Equal(t, 7.0, res.Outputs["remote"])
			assert.Equal(t, 107.0, res.Data)

			history := server.Engine.GetExecutionHistory(server.ctx, 10)
			require.Len(t, history, 1, "the peer engine ran the delegated blueprint")
			assert.Equal(t, "arithmetic", history[0].BlueprintID)
		})
	}
}

func TestRemote_PeerFailureKeepsItsCode(t *testing.T) {
	// --- Arrange ---
	server := newHarness(t, arithmetic)
	client := newHarness(t, delegating(server.serveWebSocket(t), "socket", "nope"))

	// --- Act ---
	res := client.run("delegate", map[string]any{"default": 1.0})

	// --- Assert ---
	require.False(t, res.Success)
	assert.Equal(t, model.CodeBlueprintNotFound, res.Error.Code)
	assert.Equal(t, "remote", res.Error.NodeID)
}

func TestHTTPRequest_FeedsCondition(t *testing.T) {
	// --- Arrange ---
	api := jsonServer(t, `{"items": 3}`)
	src := fmt.Sprintf(`
blueprint "poll" {
  node "fetch" {
    type       = "http_request"
    parameters = { url = %q }
  }
  node "enough" {
    condition = input.default.status_code == 200 && input.default.json.items >= params.min
    parameters = { min = 2 }
  }
  edge {
    source = "fetch"
    target = "enough"
  }
}
`, api.URL)
	h := newHarness(t, src)

	// --- Act ---
	res := h.run("poll", nil)

	// --- Assert ---
	require.True(t, res.Success, "error: %v", res.Error)
	out, ok := res.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, out["result"])
}
