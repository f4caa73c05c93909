// Package handlers holds the node type registry.
//
// A Registry maps a node type tag to the executable that runs leaf nodes of
// that type. It is constructed explicitly, populated by Modules at startup,
// and passed down to the executor; there is no package-level registry.
package handlers
