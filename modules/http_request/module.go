// Package http_request provides the http_request node. All nodes registered
// by one Module share a pooled client.
package http_request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// Type is the node type this module registers.
const Type = "http_request"

// DefaultTimeout bounds a request whose node sets no timeout parameter.
const DefaultTimeout = 30 * time.Second

// Module registers the http_request node. A nil Client is replaced by a
// pooled client on registration.
type Module struct {
	Client *http.Client
}

// Params are the parameters of an http_request node.
type Params struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	// Body is sent as JSON unless it is a string.
	Body any `json:"body"`
	// Timeout is a duration string such as "2s".
	Timeout string `json:"timeout"`
	// FailOnStatus turns responses with a status of 400 or above into node
	// failures.
	FailOnStatus bool `json:"fail_on_status"`
}

// NewClient creates the pooled client used when none is injected.
func NewClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// OnRunHttpRequest performs the request. The url parameter may be omitted
// when the url arrives on the input handle of the same name.
func (m *Module) OnRunHttpRequest(ctx context.Context, ec *model.ExecutionContext) (any, error) {
	var p Params
	if err := handlers.DecodeParams(ec, &p); err != nil {
		return nil, err
	}
	if p.URL == "" {
		p.URL, _ = ec.Input["url"].(string)
	}
	if p.URL == "" {
		return nil, handlers.MissingParam(ec, "url")
	}
	if p.Method == "" {
		p.Method = http.MethodGet
	}
	timeout := DefaultTimeout
	if p.Timeout != "" {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return nil, model.NewError(model.CodeInvalidArgument, ec.NodeID, fmt.Sprintf("invalid timeout %q", p.Timeout))
		}
		timeout = d
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := ctxlog.FromContext(ctx).With("node", ec.NodeID)
	logger.Info("Making HTTP request.", "method", p.Method, "url", p.URL)

	body, contentType, err := encodeBody(p.Body)
	if err != nil {
		return nil, model.NewError(model.CodeInvalidArgument, ec.NodeID, err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(p.Method), p.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	logger.Info("Received HTTP response.", "status", resp.Status)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if p.FailOnStatus && resp.StatusCode >= 400 {
		return nil, model.NewError(model.CodeNodeExecution, ec.NodeID, fmt.Sprintf("request failed with status %s", resp.Status))
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	out := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(raw),
		"headers":     headers,
	}
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mt == "application/json" {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			out["json"] = decoded
		}
	}
	return out, nil
}

func encodeBody(v any) (io.Reader, string, error) {
	switch b := v.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "text/plain; charset=utf-8", nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		return bytes.NewReader(raw), "application/json", nil
	}
}

// Register registers the node with the registry.
func (m *Module) Register(r *handlers.Registry) {
	if m.Client == nil {
		m.Client = NewClient()
	}
	r.RegisterHandler(Type, &handlers.RegisteredHandler{
		Description: "Performs an HTTP request and returns status_code, body, headers and, for JSON responses, json.",
		InputPorts:  []model.Port{{Name: "url"}},
		OutputPorts: []model.Port{{Name: "status_code"}, {Name: "body"}, {Name: "headers"}, {Name: "json"}},
		Fn:          handlers.Func(m.OnRunHttpRequest),
	})
}
