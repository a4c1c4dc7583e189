// Package errors provides structured error types for the rpc-stack library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: filter name, element index, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBuild, errors.KindSizeCap).
//		Filter("compress").
//		Index(2).
//		Detail("declared %d byte data region exceeds the stack size cap", size).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NilFilter(3)
//	err := errors.InvalidSize(1, "auth", "channel", -8)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
