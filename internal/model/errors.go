// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Code classifies an error surfaced to callers of the engine.
type Code string

const (
	CodeCycleDetected     Code = "CYCLE_DETECTED"
	CodeInvalidGraph      Code = "INVALID_GRAPH"
	CodeNodeExecution     Code = "NODE_EXECUTION_ERROR"
	CodeUnknownNodeType   Code = "UNKNOWN_NODE_TYPE"
	CodeNodePanic         Code = "NODE_PANIC"
	CodeTimeout           Code = "TIMEOUT"
	CodeCancelled         Code = "CANCELLED"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeExecution         Code = "EXECUTION_ERROR"
	CodeShuttingDown      Code = "SHUTTING_DOWN"
	CodeNoTransport       Code = "NO_TRANSPORT"
	CodePeerUnreachable   Code = "PEER_UNREACHABLE"
	CodeUnknownCommand    Code = "UNKNOWN_COMMAND"
	CodeRemote            Code = "REMOTE_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeBlueprintNotFound Code = "BLUEPRINT_NOT_FOUND"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
)

// Error is the structured error carried by results, job responses and
// transport replies.
type Error struct {
	Code      Code      `json:"code"`
	Message   string    `json:"message"`
	NodeID    string    `json:"nodeId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Err is the underlying cause. It is not serialized.
	Err error `json:"-"`
}

// NewError creates a coded error stamped with the current time.
func NewError(code Code, nodeID, message string) *Error {
	return &Error{Code: code, Message: message, NodeID: nodeID, Timestamp: time.Now()}
}

// Wrap creates a coded error from err. If err already is an *Error its code
// and node are kept unless they are empty.
func Wrap(code Code, nodeID string, err error) *Error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		out := *me
		if out.NodeID == "" {
			out.NodeID = nodeID
		}
		if out.Code == "" {
			out.Code = code
		}
		if out.Timestamp.IsZero() {
			out.Timestamp = time.Now()
		}
		return &out
	}
	return &Error{
		Code:      code,
		Message:   err.Error(),
		NodeID:    nodeID,
		Timestamp: time.Now(),
		Err:       err,
	}
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node '%s': %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so errors.Is(err, &Error{Code: CodeTimeout}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code && t.NodeID == "" && t.Message == ""
}

// CodeOf classifies any error. A nil error has an empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) && me.Code != "" {
		return me.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	}
	var coded interface{ ErrorCode() Code }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return CodeExecution
}

// AsError converts err into an *Error using CodeOf for classification.
func AsError(nodeID string, err error) *Error {
	if err == nil {
		return nil
	}
	return Wrap(CodeOf(err), nodeID, err)
}
