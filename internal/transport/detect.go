package transport

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// Environment describes what is available to reach an engine.
type Environment struct {
	// Kind forces an implementation. Empty means detect.
	Kind Kind
	// Bridge is a host-process bridge, when running under one.
	Bridge Bridge
	// SocketURL is a ws(s):// WebSocket or http(s):// socket.io endpoint.
	SocketURL string
	// Router is a local engine router, when running inside the server.
	Router *Router
	// HTTPURL is the base URL of a remote NewHTTPHandler.
	HTTPURL    string
	HTTPClient *http.Client
	// CallTimeout bounds socket calls. Zero selects DefaultCallTimeout.
	CallTimeout time.Duration
}

// Detect picks a transport for env. Without an explicit Kind it prefers a
// host bridge, then a socket, then a local router, then HTTP, and finally
// falls back to the in-memory stub.
func Detect(ctx context.Context, env Environment) (Transport, error) {
	kind := env.Kind
	if kind == "" {
		switch {
		case env.Bridge != nil:
			kind = KindIPC
		case env.SocketURL != "":
			kind = KindSocket
		case env.Router != nil:
			kind = KindInProcess
		case env.HTTPURL != "":
			kind = KindHTTP
		default:
			kind = KindMemory
		}
	}
	ctxlog.FromContext(ctx).Debug("Transport selected.", "kind", kind, "explicit", env.Kind != "")

	switch kind {
	case KindIPC:
		if env.Bridge == nil {
			return nil, newError(model.CodeInvalidArgument, "ipc transport needs a bridge")
		}
		return NewIPC(env.Bridge), nil
	case KindSocket:
		s, err := dialSocket(ctx, env.SocketURL, WithCallTimeout(env.CallTimeout))
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindInProcess:
		if env.Router == nil {
			return nil, newError(model.CodeInvalidArgument, "in-process transport needs a router")
		}
		return NewInProcess(env.Router), nil
	case KindHTTP:
		if env.HTTPURL == "" {
			return nil, newError(model.CodeInvalidArgument, "http transport needs a url")
		}
		return NewHTTP(env.HTTPURL, env.HTTPClient), nil
	case KindMemory:
		return NewMemory(), nil
	case KindNone:
		return None{}, nil
	default:
		return nil, newError(model.CodeInvalidArgument, "unknown transport kind %q", kind)
	}
}

func dialSocket(ctx context.Context, rawURL string, opts ...SocketOption) (*Socket, error) {
	u, err := url.Parse(rawURL)
	if err != nil || rawURL == "" {
		return nil, newError(model.CodeInvalidArgument, "invalid socket url %q", rawURL)
	}
	switch u.Scheme {
	case "ws", "wss":
		return DialWebSocket(ctx, rawURL, opts...)
	case "http", "https":
		return DialSocketIO(ctx, rawURL, opts...)
	default:
		return nil, newError(model.CodeInvalidArgument, "unsupported socket url scheme %q", u.Scheme)
	}
}
