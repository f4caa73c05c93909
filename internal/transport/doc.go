// Package transport is the channel abstraction through which callers reach an
// engine. A Transport hands out named Channels offering request/response
// calls and event subscriptions; the physical placement of the engine (same
// process, a host process over a byte stream, a socket peer, an HTTP server or
// an in-memory stub) is chosen once, by Detect, and never leaks to call sites.
//
// The server side is a Router of channel/command handlers plus an event bus.
// ServeConn, WebSocketHandler, NewHTTPHandler and ServeStream expose a Router
// over the supported wires.
package transport
