// Package perr defines the stable error taxonomy shared by every procontext
// component that can fail in a way the MCP layer must report to a caller.
//
// Cache read/write failures are deliberately NOT represented here — per
// internal/cache's contract, those never cross a package boundary as errors.
package perr

import "fmt"

// Code is a stable, wire-visible error identifier.
type Code string

// Error codes. Recoverable hints whether a client should retry the call.
const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeLibraryNotFound    Code = "LIBRARY_NOT_FOUND"
	CodeURLNotAllowed      Code = "URL_NOT_ALLOWED"
	CodePageNotFound       Code = "PAGE_NOT_FOUND"
	CodePageFetchFailed    Code = "PAGE_FETCH_FAILED"
	CodeTooManyRedirects   Code = "TOO_MANY_REDIRECTS"
	CodeRegistryLoadFailed Code = "REGISTRY_LOAD_FAILED"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// recoverableByCode records whether each code is recoverable, per the taxonomy
// table. REGISTRY_LOAD_FAILED is startup-only and has no meaningful retry
// semantics for a running server; it is marked non-recoverable here.
var recoverableByCode = map[Code]bool{
	CodeInvalidInput:       false,
	CodeLibraryNotFound:    false,
	CodeURLNotAllowed:      false,
	CodePageNotFound:       false,
	CodePageFetchFailed:    true,
	CodeTooManyRedirects:   false,
	CodeRegistryLoadFailed: false,
	CodeInternalError:      false,
}

// Error is the typed error every layer above the cache raises and the MCP
// dispatcher catches.
type Error struct {
	Code        Code
	Message     string
	Recoverable bool
	cause       error
}

// New builds an Error for code with the given message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Recoverable: recoverableByCode[code]}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap builds an Error for code, appending cause's message, and keeps cause
// for Unwrap so callers can still inspect it with errors.Is/errors.As.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{
		Code:        code,
		Message:     fmt.Sprintf("%s: %v", message, cause),
		Recoverable: recoverableByCode[code],
		cause:       cause,
	}
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

func (e *Error) Unwrap() error { return e.cause }
