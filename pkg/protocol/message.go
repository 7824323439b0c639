// Package protocol implements the space-delimited calculator wire format.
//
// A request frame is an expression followed by one space. Every request
// frame yields exactly one response frame: a decimal integer, optionally
// minus-signed, or the literal ERR token, followed by one space.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Delimiter terminates every request and response frame.
const Delimiter byte = ' '

// ErrorToken is sent in place of a value when evaluation fails.
const ErrorToken = "ERR"

// ErrMalformedResult is returned when a response frame is neither an
// integer nor ErrorToken.
var ErrMalformedResult = errors.New("malformed result frame")

// ResultKind tells a value response apart from an error response.
type ResultKind int

const (
	ResultValue ResultKind = iota
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultValue:
		return "value"
	case ResultError:
		return "error"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Result is one response frame.
type Result struct {
	Kind  ResultKind
	Value int64
}

// ResultOf maps an evaluation outcome to its response. Every error, whatever
// its cause, becomes ResultError.
func ResultOf(v int64, err error) Result {
	if err != nil {
		return Result{Kind: ResultError}
	}
	return Result{Kind: ResultValue, Value: v}
}

// Append encodes the result as a complete frame, delimiter included.
func (r Result) Append(dst []byte) []byte {
	if r.Kind == ResultError {
		dst = append(dst, ErrorToken...)
	} else {
		dst = strconv.AppendInt(dst, r.Value, 10)
	}
	return append(dst, Delimiter)
}

// Decode parses a response frame with its delimiter already stripped.
func (r *Result) Decode(frame []byte) error {
	kind, err := kindOf(frame)
	if err != nil {
		return err
	}
	if kind == ResultError {
		*r = Result{Kind: ResultError}
		return nil
	}
	v, err := strconv.ParseInt(string(frame), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrMalformedResult, frame)
	}
	*r = Result{Kind: ResultValue, Value: v}
	return nil
}

// AppendRequest encodes expr as a request frame.
func AppendRequest(dst []byte, expr string) []byte {
	dst = append(dst, expr...)
	return append(dst, Delimiter)
}

// NextFrame finds the first complete frame in buf. It returns the frame
// without its delimiter and the number of bytes the frame occupies,
// delimiter included. ok is false when buf holds no delimiter yet.
// The returned frame aliases buf.
func NextFrame(buf []byte) (frame []byte, n int, ok bool) {
	i := bytes.IndexByte(buf, Delimiter)
	if i < 0 {
		return nil, 0, false
	}
	return buf[:i], i + 1, true
}

// kindOf classifies a frame before it is parsed.
func kindOf(frame []byte) (ResultKind, error) {
	if string(frame) == ErrorToken {
		return ResultError, nil
	}
	if len(frame) == 0 {
		return ResultValue, fmt.Errorf("%w: empty frame", ErrMalformedResult)
	}
	return ResultValue, nil
}
