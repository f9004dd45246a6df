package cbor

import (
	"errors"
	"io"
	"reflect"
	"strconv"
)

// Family sentinels. Every error produced by an Encode call matches
// ErrEncode via errors.Is; every error produced by a Decode call matches
// ErrDecode. DecodeEOFError additionally matches io.ErrUnexpectedEOF so
// callers reading CBOR sequences can detect truncation generically.
var (
	ErrEncode = errors.New("cbor: encode error")
	ErrDecode = errors.New("cbor: decode error")
)

// contextError allows package errors to be enhanced with additional
// context about their origin. withContext must not modify the error
// instance; it clones and returns a new error with the context added.
type contextError interface {
	error
	withContext(ctx string) error
}

// WrapError wraps an error with context identifying the part of the
// document or value that caused the problem.
func WrapError(err error, ctx string) error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(contextError); ok {
		return ce.withContext(ctx)
	}
	return err
}

func addCtx(ctx, add string) string {
	if ctx != "" {
		return add + "/" + ctx
	}
	return add
}

// EncodeTypeError is returned when no encoder exists for a value's type
// and no fallback has been configured.
type EncodeTypeError struct {
	Type reflect.Type

	ctx string
}

// Error implements the error interface
func (e *EncodeTypeError) Error() string {
	name := "<nil>"
	if e.Type != nil {
		name = e.Type.String()
	}
	out := "cbor: cannot encode type " + strconv.Quote(name)
	if e.ctx != "" {
		out += " at " + e.ctx
	}
	return out
}

func (e *EncodeTypeError) Is(target error) bool { return target == ErrEncode }

func (e *EncodeTypeError) withContext(ctx string) error {
	o := *e
	o.ctx = addCtx(o.ctx, ctx)
	return &o
}

// EncodeValueError is returned when a value of a supported type cannot be
// represented under the active options: a cyclic structure without value
// sharing, a canonical-mode map key collision, a reserved simple value.
type EncodeValueError struct {
	Reason string

	ctx string
}

// Error implements the error interface
func (e *EncodeValueError) Error() string {
	out := "cbor: " + e.Reason
	if e.ctx != "" {
		out += " at " + e.ctx
	}
	return out
}

func (e *EncodeValueError) Is(target error) bool { return target == ErrEncode }

func (e *EncodeValueError) withContext(ctx string) error {
	o := *e
	o.ctx = addCtx(o.ctx, ctx)
	return &o
}

func encodeValueErr(reason string) error { return &EncodeValueError{Reason: reason} }

// DecodeValueError is returned for malformed or unrepresentable input:
// bad headers, invalid UTF-8 under the strict policy, semantic-tag payload
// mismatches, out-of-range shared references, or an exceeded depth limit.
type DecodeValueError struct {
	Reason string

	ctx string
}

// Error implements the error interface
func (e *DecodeValueError) Error() string {
	out := "cbor: " + e.Reason
	if e.ctx != "" {
		out += " at " + e.ctx
	}
	return out
}

func (e *DecodeValueError) Is(target error) bool { return target == ErrDecode }

func (e *DecodeValueError) withContext(ctx string) error {
	o := *e
	o.ctx = addCtx(o.ctx, ctx)
	return &o
}

func decodeValueErr(reason string) error { return &DecodeValueError{Reason: reason} }

// DecodeEOFError is returned when the byte source ends in the middle of a
// data item.
type DecodeEOFError struct {
	Wanted int // bytes needed to finish the current read
	Got    int // bytes actually available

	ctx string
}

// Error implements the error interface
func (e *DecodeEOFError) Error() string {
	out := "cbor: premature end of stream (expected " + strconv.Itoa(e.Wanted) +
		" bytes, got " + strconv.Itoa(e.Got) + ")"
	if e.ctx != "" {
		out += " at " + e.ctx
	}
	return out
}

func (e *DecodeEOFError) Is(target error) bool {
	return target == ErrDecode || target == io.ErrUnexpectedEOF
}

func (e *DecodeEOFError) withContext(ctx string) error {
	o := *e
	o.ctx = addCtx(o.ctx, ctx)
	return &o
}
