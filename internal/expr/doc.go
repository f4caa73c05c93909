// Package expr implements the closed predicate grammar used by condition
// nodes and blueprint files.
//
// Expressions use HCL expression syntax. Only the roots input, variables and
// params may be referenced, and only a fixed set of pure functions can be
// called. Both rules are checked by Compile, so an expression that compiles
// can only fail at evaluation time on missing data or a type mismatch.
package expr
