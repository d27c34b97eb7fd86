// Package mcpserver implements the MCP stdio server (A6): the thinnest
// possible tool surface binding the core engine to an AI assistant, grounded
// on the teacher's internal/mcp package (Server shape, error mapping,
// request-id logging) and github.com/modelcontextprotocol/go-sdk.
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridian-dev/meridian/internal/merrors"
)

// Standard JSON-RPC error codes, reused from the teacher's mcp package.
const (
	ErrCodeInvalidParams  = -32602
	ErrCodeMethodNotFound = -32601
	ErrCodeInternalError  = -32603
	ErrCodeTimeout        = -32001
)

// ToolError is an MCP protocol error with a JSON-RPC-style code.
type ToolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// MapError converts an internal error into a ToolError, branching on
// *merrors.MeridianError's Kind rather than string-matching messages.
func MapError(err error) *ToolError {
	if err == nil {
		return nil
	}

	var me *merrors.MeridianError
	if errors.As(err, &me) {
		return mapMeridianError(me)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &ToolError{Code: ErrCodeTimeout, Message: "request timed out"}
	default:
		return &ToolError{Code: ErrCodeInternalError, Message: err.Error()}
	}
}

func mapMeridianError(me *merrors.MeridianError) *ToolError {
	message := me.Message
	if me.Suggestion != "" {
		message = message + " " + me.Suggestion
	}

	switch me.Kind {
	case merrors.KindNotFound:
		return &ToolError{Code: ErrCodeMethodNotFound, Message: message}
	case merrors.KindInvalidInput:
		return &ToolError{Code: ErrCodeInvalidParams, Message: message}
	case merrors.KindTransient:
		return &ToolError{Code: ErrCodeTimeout, Message: message}
	default:
		return &ToolError{Code: ErrCodeInternalError, Message: message}
	}
}

// NewInvalidParamsError builds a ToolError for a bad tool call argument.
func NewInvalidParamsError(msg string) *ToolError {
	return &ToolError{Code: ErrCodeInvalidParams, Message: msg}
}
