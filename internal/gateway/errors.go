package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies the outcome of a storage call. A nil error is success.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindClient
	KindServer
	KindNetwork
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error is the uniform failure result of every gateway call.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindClient:
		// 4xx bodies are shown to the user as sent.
		if e.Message != "" {
			return e.Message
		}
		return fmt.Sprintf("%s: request rejected (%d)", e.Op, e.Status)
	case KindNotFound:
		return fmt.Sprintf("%s: not found", e.Op)
	case KindServer:
		return fmt.Sprintf("%s: server error (%d)", e.Op, e.Status)
	case KindTimeout:
		return fmt.Sprintf("%s: timed out", e.Op)
	case KindNetwork:
		return fmt.Sprintf("%s: network unavailable", e.Op)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": failed"
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the call exceeded its deadline.
func (e *Error) Timeout() bool { return e.Kind == KindTimeout }

// KindOf extracts the outcome kind from err. A nil error yields KindUnknown.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err may clear up on its own.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindServer:
		return true
	}
	return false
}

// IsUnreachable reports whether the store gave no answer at all.
func IsUnreachable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout:
		return true
	}
	return false
}

func statusError(op string, status int, message string) *Error {
	switch {
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Op: op, Status: status, Message: message}
	case status >= 500:
		return &Error{Kind: KindServer, Op: op, Status: status, Message: message}
	default:
		return &Error{Kind: KindClient, Op: op, Status: status, Message: message}
	}
}

func transportError(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}
