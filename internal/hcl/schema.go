package hcl

import "github.com/hashicorp/hcl/v2"

type fileSchema struct {
	Blueprints []*blueprintBlock `hcl:"blueprint,block"`
}

type blueprintBlock struct {
	ID          string         `hcl:"id,label"`
	Description *string        `hcl:"description,optional"`
	Variables   hcl.Expression `hcl:"variables,optional"`
	Parallel    *bool          `hcl:"parallel,optional"`
	// ContinueOnError keeps independent branches running after a failure.
	ContinueOnError *bool        `hcl:"continue_on_error,optional"`
	MaxConcurrency  *int         `hcl:"max_concurrency,optional"`
	Nodes           []*nodeBlock `hcl:"node,block"`
	Edges           []*edgeBlock `hcl:"edge,block"`
}

// nodeBlock is a leaf, or a group when it has nested nodes or its type is
// "group".
type nodeBlock struct {
	ID         string         `hcl:"id,label"`
	Type       *string        `hcl:"type,optional"`
	Parameters hcl.Expression `hcl:"parameters,optional"`
	Condition  hcl.Expression `hcl:"condition,optional"`
	Weight     *float64       `hcl:"weight,optional"`
	// Timeout is a duration string such as "5s" or a number of milliseconds.
	Timeout hcl.Expression `hcl:"timeout,optional"`

	Variables       hcl.Expression `hcl:"variables,optional"`
	Parallel        *bool          `hcl:"parallel,optional"`
	ContinueOnError *bool          `hcl:"continue_on_error,optional"`
	MaxConcurrency  *int           `hcl:"max_concurrency,optional"`
	Nodes           []*nodeBlock   `hcl:"node,block"`
	Edges           []*edgeBlock   `hcl:"edge,block"`
}

type edgeBlock struct {
	Source       string  `hcl:"source"`
	Target       string  `hcl:"target"`
	SourceHandle *string `hcl:"source_handle,optional"`
	TargetHandle *string `hcl:"target_handle,optional"`
}
