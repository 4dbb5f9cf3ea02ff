package model

import (
	"context"
	"errors"
	"fmt"
)

// ValidationError reports bad user input. It never reaches the network layer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// DuplicateItemError is returned when an item name is already on the list.
type DuplicateItemError struct {
	Name string
}

func (e *DuplicateItemError) Error() string {
	return fmt.Sprintf("item %q already exists", e.Name)
}

// NotFoundError signals an expected absence, such as a brand new group with no
// items. Callers treat it as empty state.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// SyncError wraps a failed remote write that had already been applied
// optimistically.
type SyncError struct {
	Op   string
	Item string
	Err  error
}

func (e *SyncError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sync %s %q: %v", e.Op, e.Item, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Timeout reports whether the write failed because its deadline passed.
func (e *SyncError) Timeout() bool {
	return IsTimeout(e.Err)
}

// IsValidation reports whether err is a ValidationError or DuplicateItemError.
func IsValidation(err error) bool {
	var ve *ValidationError
	var de *DuplicateItemError
	return errors.As(err, &ve) || errors.As(err, &de)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsTimeout reports whether err came from a deadline. Any error in the chain
// that exposes Timeout() bool is honoured.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
