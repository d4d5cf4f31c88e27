package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// Result is the outcome of a Job.
type Result struct {
	OK    bool             `json:"ok"`
	Value json.RawMessage  `json:"value,omitempty"`
	Error *ErrorDescriptor `json:"error,omitempty"`
}

// ErrorDescriptor is a flattened, re-hydratable description of an error.
// The original error's type is not preserved.
type ErrorDescriptor struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// NewResult returns a successful Result of the JSON encoding of |value|,
// as mapped by EncodeValue. If |value| cannot be encoded, a failed Result
// is returned instead.
func NewResult(value interface{}) Result {
	var b, err = json.Marshal(EncodeValue(value))
	if err != nil {
		return FailedResult(errors.WithMessage(err, "encoding result"))
	}
	return Result{OK: true, Value: b}
}

// FailedResult returns a failed Result describing |err|.
func FailedResult(err error) Result {
	var d = Describe(err)
	return Result{OK: false, Error: &d}
}

// Describe flattens |err| into an ErrorDescriptor. Where |err| (or an error it
// wraps) carries a github.com/pkg/errors stack trace, the trace is rendered
// into Stack.
func Describe(err error) ErrorDescriptor {
	if re, ok := err.(*RemoteError); ok {
		return re.ErrorDescriptor
	}
	var d = ErrorDescriptor{Message: err.Error()}

	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	for cause := err; cause != nil; {
		if _, ok := cause.(stackTracer); ok {
			d.Stack = fmt.Sprintf("%+v", err)
			break
		}
		var u, ok = cause.(interface{ Unwrap() error })
		if !ok {
			break
		}
		cause = u.Unwrap()
	}
	return d
}

// Validate returns an error if the Result is not well-formed.
func (m *Result) Validate() error {
	if m.OK && m.Error != nil {
		return NewValidationError("unexpected Error of OK Result")
	} else if !m.OK && m.Error == nil {
		return NewValidationError("expected Error of failed Result")
	}
	return nil
}

// Err returns nil if the Result is OK, or a *RemoteError otherwise.
func (m *Result) Err() error {
	if m.OK {
		return nil
	} else if m.Error == nil {
		return &RemoteError{ErrorDescriptor{Message: "job failed without an error description"}}
	}
	return &RemoteError{*m.Error}
}

// Decode the Value of the Result into |out|. If the Result failed, its
// error is returned instead. Untyped outputs (*interface{}, or pointers to
// maps and slices of untyped values, such as *sqlite.Row) are decoded as by
// NormalizeValue. Typed outputs see []byte and time.Time values as
// encoding/json represents them. If |out| is nil, or the Result has no
// Value, Decode is a no-op.
func (m *Result) Decode(out interface{}) error {
	if err := m.Err(); err != nil {
		return err
	} else if out == nil || len(m.Value) == 0 {
		return nil
	}

	var rv = reflect.ValueOf(out)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		if _, ok := convertUntyped(nil, rv.Elem().Type()); ok {
			var v interface{}
			if err := DecodeValue(m.Value, &v); err != nil {
				return errors.WithMessage(err, "decoding result")
			}
			if cv, ok := convertUntyped(NormalizeValue(v), rv.Elem().Type()); ok {
				rv.Elem().Set(cv)
				return nil
			}
			// Shape mismatch. Fall through for a descriptive decoding error.
		}
	}

	var raw = m.Value
	if hasTags(raw) {
		// Re-encode with tagged values restored, so that typed []byte and
		// time.Time fields decode from their encoding/json representations.
		var v interface{}
		if err := DecodeValue(raw, &v); err != nil {
			return errors.WithMessage(err, "decoding result")
		}
		var err error
		if raw, err = json.Marshal(restoreValue(v, false)); err != nil {
			return errors.WithMessage(err, "decoding result")
		}
	}
	if err := DecodeValue(raw, out); err != nil {
		return errors.WithMessage(err, "decoding result")
	}
	return nil
}

// RemoteError is an error which occurred while running a Job in another
// execution context, as observed by the Job's caller.
type RemoteError struct {
	ErrorDescriptor
}

// Error returns the message of the remote error.
func (e *RemoteError) Error() string { return e.Message }
