// Package tools provides the tool registry and execution framework.
//
// This file defines the error types tool dispatch can produce.
package tools

import (
	"errors"
	"fmt"
	"strings"
)

// Categories reported in error payloads and results.
const (
	CategoryUnknownTool      = "unknown_tool"
	CategoryInvalidArguments = "invalid_arguments"
	CategoryDataNotFound     = "data_not_found"
	CategoryToolFailed       = "tool_failed"
)

// ErrUnknownTool is returned when a call names a tool that is not in the
// registry. The model asked for a capability that does not exist; the
// run continues and the model sees the error.
type ErrUnknownTool struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("tool %q does not exist", e.ToolName)
}

// ErrInvalidArguments is returned when call arguments fail the tool's
// parameter schema.
type ErrInvalidArguments struct {
	ToolName string
	Problems []string
}

// Error implements the error interface.
func (e *ErrInvalidArguments) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.ToolName, strings.Join(e.Problems, "; "))
}

// ErrDataNotFound is returned by handlers when the record a tool needs
// does not exist. Dispatch turns it into an ordinary result whose text
// says so; it is not a failure.
type ErrDataNotFound struct {
	What   string
	UserID string
}

// Error implements the error interface.
func (e *ErrDataNotFound) Error() string {
	return fmt.Sprintf("No %s found for user %s.", e.What, e.UserID)
}

// Category classifies err for error payloads.
func Category(err error) string {
	var unknown *ErrUnknownTool
	var invalid *ErrInvalidArguments
	var notFound *ErrDataNotFound
	switch {
	case errors.As(err, &unknown):
		return CategoryUnknownTool
	case errors.As(err, &invalid):
		return CategoryInvalidArguments
	case errors.As(err, &notFound):
		return CategoryDataNotFound
	default:
		return CategoryToolFailed
	}
}
