// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Class partitions pipeline failures by how the caller should react.
type Class int

const (
	// Permanent failures will not succeed on retry (malformed
	// request, non-retryable 4xx, unclassified errors).
	Permanent Class = iota
	// Transient failures (timeout, 5xx, 429) are worth retrying
	// with backoff.
	Transient
	// Integrity failures indicate hash/checksum/chain mismatch.
	Integrity
	// Authentication failures indicate AEAD tag verification failure.
	Authentication
	// Format failures indicate an unrecognized envelope version or
	// algorithm.
	Format
)

// String returns the class name used in logs and job records.
func (c Class) String() string {
	switch c {
	case Permanent:
		return "permanent"
	case Transient:
		return "transient"
	case Integrity:
		return "integrity"
	case Authentication:
		return "authentication"
	case Format:
		return "format"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Error is a classified pipeline failure. Op names the operation that
// failed (e.g. "contentstore.upload"); Err is the underlying cause.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Class)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given class and operation name.
func New(class Class, op string, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

// Newf constructs a classified error from a format string.
func Newf(class Class, op string, format string, args ...any) *Error {
	return &Error{Class: class, Op: op, Err: fmt.Errorf(format, args...)}
}

// ClassOf returns the class of err. Errors that do not wrap a
// *fault.Error classify as Permanent.
func ClassOf(err error) Class {
	var faultErr *Error
	if errors.As(err, &faultErr) {
		return faultErr.Class
	}
	return Permanent
}

// Is reports whether err carries the given class.
func Is(err error, class Class) bool {
	return ClassOf(err) == class
}

// Retryable reports whether err is worth retrying with backoff. Only
// Transient failures qualify.
func Retryable(err error) bool {
	return ClassOf(err) == Transient
}

// FromHTTPStatus classifies an HTTP response status per the pipeline
// taxonomy: 5xx and 429 are transient, every other 4xx is permanent.
// Statuses below 400 are not failures; passing one panics to catch
// misuse at the call site.
func FromHTTPStatus(op string, status int) *Error {
	if status < 400 {
		panic(fmt.Sprintf("fault: FromHTTPStatus called with non-error status %d", status))
	}
	class := Permanent
	if status >= 500 || status == http.StatusTooManyRequests {
		class = Transient
	}
	return Newf(class, op, "http status %d", status)
}

// FromTransport classifies a transport-level error from an HTTP or
// network call as transient. Timeouts, context deadlines, connection
// refusals, and broken pipes all describe a far end that may recover;
// a timeout in particular is a retryable failure, never a success.
// Request construction errors are not transport errors and must be
// classified Permanent by the caller before the request is sent.
func FromTransport(op string, err error) *Error {
	return New(Transient, op, err)
}
