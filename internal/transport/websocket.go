package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn adapts a gorilla connection to Conn.
type wsConn struct {
	ws *websocket.Conn

	wmu  sync.Mutex
	once sync.Once
}

// NewWebSocketConn wraps an established WebSocket connection.
func NewWebSocketConn(ws *websocket.Conn) Conn {
	return &wsConn{ws: ws}
}

func (c *wsConn) ReadEnvelope() (*Envelope, error) {
	var env Envelope
	if err := c.ws.ReadJSON(&env); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
			return nil, io.EOF
		}
		return nil, err
	}
	return &env, nil
}

func (c *wsConn) WriteEnvelope(env *Envelope) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteJSON(env)
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		c.wmu.Lock()
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// WebSocketHandler upgrades requests to WebSocket connections and serves
// router over each of them. Sessions log through the logger carried by ctx.
func WebSocketHandler(ctx context.Context, router *Router) http.Handler {
	logger := ctxlog.FromContext(ctx)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Failed to upgrade WebSocket connection.", "remote_addr", r.RemoteAddr, "error", err)
			return
		}
		sessionLogger := logger.With("remote_addr", r.RemoteAddr)
		sessionCtx := ctxlog.WithLogger(r.Context(), sessionLogger)
		if err := ServeConn(sessionCtx, router, NewWebSocketConn(ws)); err != nil {
			sessionLogger.Debug("WebSocket session closed with error.", "error", err)
		}
	})
}

// DialWebSocket connects to a WebSocketHandler at rawURL (ws:// or wss://).
func DialWebSocket(ctx context.Context, rawURL string, opts ...SocketOption) (*Socket, error) {
	o := newSocketOptions(opts)
	dialer := *websocket.DefaultDialer
	if o.tlsConfig != nil {
		dialer.TLSClientConfig = o.tlsConfig
	}

	ws, resp, err := dialer.DialContext(ctx, rawURL, o.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, newError(model.CodePeerUnreachable, "dial %s: %v", rawURL, err)
	}
	ctxlog.FromContext(ctx).Debug("WebSocket transport connected.", "url", rawURL)
	return NewSocket(ctx, NewWebSocketConn(ws), opts...), nil
}
