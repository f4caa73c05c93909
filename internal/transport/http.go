package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/model"
)

const maxBodyBytes = 10 << 20

// httpReply is the JSON body of every /api response.
type httpReply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// HTTP is a stateless call-only Transport against NewHTTPHandler.
type HTTP struct {
	baseURL string
	client  *http.Client
}

// NewHTTP creates an HTTP transport. A nil client selects
// http.DefaultClient.
func NewHTTP(baseURL string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (t *HTTP) Kind() Kind { return KindHTTP }

func (t *HTTP) Channel(name string) Channel { return &channel{name: name, c: t} }

func (t *HTTP) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTP) call(ctx context.Context, channel, command string, args json.RawMessage) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/api/%s/%s", t.baseURL, url.PathEscape(channel), url.PathEscape(command))
	if len(args) == 0 {
		args = json.RawMessage("null")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(args))
	if err != nil {
		return nil, newError(model.CodeInvalidArgument, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(model.CodeOf(ctx.Err()), "call %s: %v", key(channel, command), ctx.Err())
		}
		return nil, newError(model.CodePeerUnreachable, "call %s: %v", key(channel, command), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, newError(model.CodePeerUnreachable, "read response of %s: %v", key(channel, command), err)
	}
	var reply httpReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, newError(model.CodeRemote, "%s returned %s", key(channel, command), resp.Status)
	}
	if reply.Error != nil {
		if reply.Error.Code == "" {
			reply.Error.Code = model.CodeRemote
		}
		return nil, reply.Error
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newError(model.CodeRemote, "%s returned %s", key(channel, command), resp.Status)
	}
	return reply.Result, nil
}

// listen is a no-op: HTTP has no push channel.
func (t *HTTP) listen(string, string, func(json.RawMessage)) (Unsubscribe, error) {
	return noop, nil
}

// NewHTTPHandler returns a mux router serving POST /api/{channel}/{command}
// from router. Callers may mount further routes on it.
func NewHTTPHandler(ctx context.Context, router *Router) *mux.Router {
	r := mux.NewRouter()
	logger := ctxlog.FromContext(ctx)
	r.HandleFunc("/api/{channel}/{command}", func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
		if err != nil {
			writeReply(w, http.StatusBadRequest, httpReply{Error: newError(model.CodeInvalidArgument, "read body: %v", err)})
			return
		}
		if len(bytes.TrimSpace(body)) == 0 {
			body = nil
		}

		callCtx := ctxlog.WithLogger(req.Context(), logger)
		out, err := router.Dispatch(callCtx, vars["channel"], vars["command"], body)
		if err != nil {
			te := toError(err)
			logger.Debug("HTTP call failed.", "channel", vars["channel"], "command", vars["command"], "code", te.Code)
			writeReply(w, statusFor(te.Code), httpReply{Error: te})
			return
		}
		writeReply(w, http.StatusOK, httpReply{Result: out})
	}).Methods(http.MethodPost)
	return r
}

func writeReply(w http.ResponseWriter, status int, reply httpReply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(reply)
}

func statusFor(code model.Code) int {
	switch code {
	case model.CodeUnknownCommand, model.CodeNotFound, model.CodeBlueprintNotFound:
		return http.StatusNotFound
	case model.CodeInvalidArgument, model.CodeInvalidGraph, model.CodeCycleDetected:
		return http.StatusBadRequest
	case model.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case model.CodeTimeout:
		return http.StatusGatewayTimeout
	case model.CodeShuttingDown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
