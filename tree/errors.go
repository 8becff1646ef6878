package tree

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no document matches a point lookup.
	ErrNotFound = errors.New("mpath: node not found")

	// ErrParentNotFound is returned when a create or reparent references a missing parent.
	ErrParentNotFound = errors.New("mpath: parent node not found")

	// ErrAlreadyExists is returned by Insert when a node with the same id is stored.
	ErrAlreadyExists = errors.New("mpath: node already exists")

	// ErrCycle is returned when a reparent would make a node its own ancestor.
	ErrCycle = errors.New("mpath: node cannot be moved under itself or its descendants")

	// ErrInvalidID is returned when an id contains the path separator.
	ErrInvalidID = errors.New("mpath: id contains the path separator")
)

// ValidationError marks a single field of a node as invalid. The write
// that produced it was aborted and nothing was persisted for the node.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v (%s=%q)", e.Err, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ItemError is the failure of one item inside a fan-out.
type ItemError struct {
	ID  string
	Err error
}

func (e ItemError) Error() string {
	return e.ID + ": " + e.Err.Error()
}

// BatchError reports the items of a bounded fan-out that failed. Items not
// listed in Failed completed successfully; nothing is rolled back.
type BatchError struct {
	Op     string
	Total  int
	Failed []ItemError
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mpath: %s: %d of %d items failed", e.Op, len(e.Failed), e.Total)
	for i, f := range e.Failed {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Failed)-i)
			break
		}
		b.WriteString("; ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// Unwrap exposes every item error to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}
	return errs
}

// FailedIDs lists the ids of the failed items in the order they were recorded.
func (e *BatchError) FailedIDs() []string {
	ids := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = f.ID
	}
	return ids
}
