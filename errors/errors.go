package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the stack lifecycle the error occurred
type Phase string

const (
	PhaseBuild       Phase = "build"        // filter list validation and assembly
	PhaseChannelInit Phase = "channel_init" // channel stack construction
	PhaseCallInit    Phase = "call_init"    // call stack construction
	PhaseOp          Phase = "op"           // operation propagation
	PhaseStatus      Phase = "status"       // status delivery
	PhaseParse       Phase = "parse"        // pipeline spec parsing
)

// Kind categorizes the error
type Kind string

const (
	KindNilFilter    Kind = "nil_filter"
	KindInvalidSize  Kind = "invalid_size"
	KindEmptyStack   Kind = "empty_stack"
	KindSizeCap      Kind = "size_cap"
	KindUnsupported  Kind = "unsupported"
	KindInvalidInput Kind = "invalid_input"
)

// Error is the structured error type used throughout the stack
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Filter string
	Index  int
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Filter != "" {
		b.WriteString(" filter ")
		b.WriteString(fmt.Sprintf("%q", e.Filter))
	}
	if e.Index >= 0 {
		b.WriteString(" at index ")
		b.WriteString(fmt.Sprintf("%d", e.Index))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
			Index: -1,
		},
	}
}

// Filter sets the filter name
func (b *Builder) Filter(name string) *Builder {
	b.err.Filter = name
	return b
}

// Index sets the element index
func (b *Builder) Index(i int) *Builder {
	b.err.Index = i
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// NilFilter reports a nil entry in a filter list
func NilFilter(index int) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindNilFilter,
		Index:  index,
		Detail: "filter is nil",
	}
}

// InvalidSize reports a negative declared data size
func InvalidSize(index int, filter, region string, size int) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindInvalidSize,
		Filter: filter,
		Index:  index,
		Detail: fmt.Sprintf("declared %s data size %d is negative", region, size),
		Value:  size,
	}
}

// EmptyStack reports a build attempt with no filters
func EmptyStack() *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindEmptyStack,
		Index:  -1,
		Detail: "at least one filter is required",
	}
}

// SizeCap reports a filter list whose regions exceed the stack size cap
func SizeCap(index int, filter string, size int) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindSizeCap,
		Filter: filter,
		Index:  index,
		Detail: fmt.Sprintf("declared %d byte data region exceeds the stack size cap", size),
		Value:  size,
	}
}

// Unsupported reports an operation this layer does not provide
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Index:  -1,
		Detail: what,
	}
}

// InvalidInput reports malformed caller input
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Index:  -1,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Index:  -1,
		Detail: detail,
		Cause:  cause,
	}
}
