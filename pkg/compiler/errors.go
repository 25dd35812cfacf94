package compiler

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Every error returned by the generator matches exactly one
// of them under errors.Is.
var (
	ErrInvalidProgram = errors.New("invalid program")
	ErrUnsupported    = errors.New("unsupported feature")
	ErrScope          = errors.New("scoping error")
)

// ErrorCategory classifies a codegen failure.
type ErrorCategory int

const (
	CategoryInvalidProgram ErrorCategory = iota
	CategoryUnsupported
	CategoryScope
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryInvalidProgram:
		return "invalid program"
	case CategoryUnsupported:
		return "unsupported feature"
	case CategoryScope:
		return "scoping error"
	default:
		return "unknown"
	}
}

func (c ErrorCategory) sentinel() error {
	switch c {
	case CategoryInvalidProgram:
		return ErrInvalidProgram
	case CategoryUnsupported:
		return ErrUnsupported
	case CategoryScope:
		return ErrScope
	default:
		return nil
	}
}

// Error is a categorised codegen failure.
type Error struct {
	Category ErrorCategory
	Message  string
}

func (e *Error) Error() string {
	return e.Category.String() + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Category.sentinel()
}

func invalidf(format string, args ...any) error {
	return &Error{Category: CategoryInvalidProgram, Message: fmt.Sprintf(format, args...)}
}

func unsupportedf(format string, args ...any) error {
	return &Error{Category: CategoryUnsupported, Message: fmt.Sprintf(format, args...)}
}

func scopef(format string, args ...any) error {
	return &Error{Category: CategoryScope, Message: fmt.Sprintf(format, args...)}
}
