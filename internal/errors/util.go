package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorStack returns the stack traces of every error in the tree, joined by newlines.
// Returns an empty string if none of the errors carry a stack.
func ErrorStack(err error) string {
	var stacks []string

	for _, err := range UnwrapMultiErrors(err) {
		for ; err != nil; err = errors.Unwrap(err) {
			if stacker, ok := err.(interface{ ErrorStack() string }); ok {
				stacks = append(stacks, stacker.ErrorStack())

				break
			}
		}
	}

	return strings.Join(stacks, "\n")
}

// IsContextCanceled returns `true` if error has occurred by event `context.Canceled` which is not really an error.
func IsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Recover tries to recover from panics, and if it succeeds, calls the given onPanic function with an error that
// explains the cause of the panic. This function should only be called from a defer statement.
func Recover(onPanic func(cause error)) {
	if rec := recover(); rec != nil {
		err, isError := rec.(error)
		if !isError {
			err = fmt.Errorf("%v", rec) //nolint:err113
		}

		onPanic(New(err))
	}
}

// UnwrapMultiErrors flattens nested multi-errors (anything implementing `Unwrap() []error`) into a slice.
func UnwrapMultiErrors(err error) []error {
	if err == nil {
		return nil
	}

	var (
		queue  = []error{err}
		result []error
	)

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		multi := findMulti(next)
		if multi == nil {
			result = append(result, next)
			continue
		}

		queue = append(queue, multi.Unwrap()...)
	}

	return result
}

func findMulti(err error) interface{ Unwrap() []error } {
	for ; err != nil; err = errors.Unwrap(err) {
		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			return multi
		}
	}

	return nil
}
