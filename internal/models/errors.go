package models

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures so callers can branch on them without string
// matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindDataUnavailable
	KindAscentTimeout
	KindDescentTimeout
	KindInsufficientSamples
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindDataUnavailable:
		return "data unavailable"
	case KindAscentTimeout:
		return "ascent timeout"
	case KindDescentTimeout:
		return "descent timeout"
	case KindInsufficientSamples:
		return "insufficient samples"
	}
	return "unknown"
}

// Violation is a single failed field check.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

type Error struct {
	Kind       Kind
	Op         string
	Msg        string
	Violations []Violation
	Err        error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrDataUnavailable     = &Error{Kind: KindDataUnavailable}
	ErrAscentTimeout       = &Error{Kind: KindAscentTimeout}
	ErrDescentTimeout      = &Error{Kind: KindDescentTimeout}
	ErrInsufficientSamples = &Error{Kind: KindInsufficientSamples}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Violations) > 0 {
		parts := make([]string, len(e.Violations))
		for i, v := range e.Violations {
			parts[i] = v.String()
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(parts, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == ""
}

// Errorf builds a kinded error with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// InvalidInput builds an error listing every violation.
func InvalidInput(op string, violations []Violation) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Violations: violations}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ViolationsOf returns the violations carried by an invalid input error.
func ViolationsOf(err error) []Violation {
	var e *Error
	if errors.As(err, &e) {
		return e.Violations
	}
	return nil
}
