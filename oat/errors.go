/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound means a search ran to completion without a match. It is
	// never used for bytes that could not be decoded.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRange is returned by NewImage for a null or inverted byte range.
	ErrInvalidRange = errors.New("invalid image range")

	// ErrOutOfBounds is the direct cause of every failed dex file walk: a
	// read would have crossed the end of the mapped image.
	ErrOutOfBounds = errors.New("read past end of image")

	// ErrZeroOffset is reported when a record that must point somewhere
	// carries the reserved offset 0.
	ErrZeroOffset = errors.New("reserved zero offset")

	// ErrIndexOutOfRange is returned for a dex file or class def index at or
	// past the count recorded for it. It is a caller error, not a decode
	// failure.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrUnknownClassType is the cause of a class record whose type field is
	// not one of the known ClassType values.
	ErrUnknownClassType = errors.New("unknown oat class type")

	// ErrNoCompiledCode is returned when code is requested from a method
	// that runs in the interpreter. Lookups report that case through
	// Method.HasQuickCompiledCode instead.
	ErrNoCompiledCode = errors.New("method has no compiled code")
)

// DecodeError reports bytes that could not be decoded safely. Once a
// DecodeError is seen during a walk nothing after it in the stream is
// trustworthy.
type DecodeError struct {
	Op         string // record kind being decoded
	Index      uint32 // dex file or class def index, when meaningful
	Location   string // owning dex file location, when known
	Descriptor string // class descriptor, when known
	Addr       Addr   // address the failing read started at
	Err        error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "decoding %s", e.Op)
	if e.Descriptor != "" {
		fmt.Fprintf(&b, " %s", e.Descriptor)
	}
	fmt.Fprintf(&b, " #%d", e.Index)
	if e.Location != "" {
		fmt.Fprintf(&b, " in %s", e.Location)
	}
	if e.Addr != 0 {
		fmt.Fprintf(&b, " at %#x", uint64(e.Addr))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means "searched everything, no match".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
