// Package check validates configuration values.
package check

import (
	"github.com/pkg/errors"
)

// The condition helpers return nil when the condition holds, so Validate methods can list them
// without branching.

func failure(msg string, format string, args ...any) error {
	err := errors.Errorf(format, args...)
	if msg == "" {
		return err
	}
	return errors.Wrap(err, msg)
}

// True checks that the condition holds.
func True(condition bool, msg string) error {
	if condition {
		return nil
	}
	return failure(msg, "expected true, got false")
}

// NotEmpty checks that s is not empty.
func NotEmpty(s string, msg string) error {
	if s != "" {
		return nil
	}
	return failure(msg, "expected a non-empty string")
}

// GreaterThan checks that actual is strictly greater than bound.
func GreaterThan(actual, bound float64, msg string) error {
	if actual > bound {
		return nil
	}
	return failure(msg, "%v is not greater than %v", actual, bound)
}

// GreaterThanOrEqualTo checks that actual is at least bound.
func GreaterThanOrEqualTo(actual, bound float64, msg string) error {
	if actual >= bound {
		return nil
	}
	return failure(msg, "%v is less than %v", actual, bound)
}

// Equal checks that actual equals expected.
func Equal[T comparable](actual, expected T, msg string) error {
	if actual == expected {
		return nil
	}
	return failure(msg, "%v is not equal to %v", actual, expected)
}

// OneOf checks that actual is one of the allowed values.
func OneOf[T comparable](actual T, allowed []T, msg string) error {
	for _, a := range allowed {
		if a == actual {
			return nil
		}
	}
	return failure(msg, "%v not in %v", actual, allowed)
}
