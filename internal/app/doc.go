// Package app contains the core application logic. It builds the engine with
// the built-in node modules, loads blueprint files and runs one of three
// modes: run a blueprint once, serve the engine over HTTP and WebSocket, or
// act as an IPC peer on standard input and output.
package app
