package relay

import (
	"fmt"
	"reflect"

	berr "github.com/next-trace/scg-relay/contract/errors"
)

// Filter decides whether a handler receives a message.
// Implementations should be pure; each filter is evaluated at most once per publish per handler.
type Filter[T any] interface {
	Apply(msg T) bool
}

// FilterFunc adapts a plain predicate to Filter.
type FilterFunc[T any] func(msg T) bool

func (f FilterFunc[T]) Apply(msg T) bool { return f(msg) }

// Predicate wraps fn as a Filter. A nil fn is rejected.
func Predicate[T any](fn func(msg T) bool) (Filter[T], error) {
	if fn == nil {
		return nil, fmt.Errorf("predicate %s: nil func: %w", typeName(reflect.TypeFor[T]()), berr.ErrInvalidArgument)
	}

	return FilterFunc[T](fn), nil
}

// CompositeFilter is the logical AND of an ordered list of filters.
// Evaluation is left to right and stops at the first filter that rejects.
type CompositeFilter[T any] struct {
	filters []Filter[T]
}

// Compose builds a CompositeFilter. Nil entries are skipped.
func Compose[T any](filters ...Filter[T]) *CompositeFilter[T] {
	c := &CompositeFilter[T]{filters: make([]Filter[T], 0, len(filters))}
	for _, f := range filters {
		if f != nil {
			c.filters = append(c.filters, f)
		}
	}

	return c
}

// Apply returns true when there are no filters or every filter accepts msg.
func (c *CompositeFilter[T]) Apply(msg T) bool {
	switch len(c.filters) {
	case 0:
		return true
	case 1:
		return c.filters[0].Apply(msg)
	}

	for _, f := range c.filters {
		if !f.Apply(msg) {
			return false
		}
	}

	return true
}

// Len reports the number of composed filters.
func (c *CompositeFilter[T]) Len() int { return len(c.filters) }

// Not inverts f.
func Not[T any](f Filter[T]) Filter[T] {
	return FilterFunc[T](func(msg T) bool { return !f.Apply(msg) })
}

// AnyOf accepts a message when at least one filter does. With no filters it rejects everything.
func AnyOf[T any](filters ...Filter[T]) Filter[T] {
	fs := append([]Filter[T](nil), filters...)

	return FilterFunc[T](func(msg T) bool {
		for _, f := range fs {
			if f != nil && f.Apply(msg) {
				return true
			}
		}

		return false
	})
}

func combine[T any](filters []Filter[T]) Filter[T] {
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	default:
		return Compose(filters...)
	}
}
