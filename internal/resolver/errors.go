package resolver

import "fmt"

// Code identifies why a principal's tenants could not be resolved.
type Code string

const (
	CodeNoTenant          Code = "no_tenant"
	CodeSourceUnavailable Code = "source_unavailable"
	CodeInvalidSource     Code = "invalid_source"
)

var errorMessages = map[Code]string{
	CodeNoTenant:          "No tenant resolved for principal",
	CodeSourceUnavailable: "Tenant source unavailable",
	CodeInvalidSource:     "Tenant source misconfigured",
}

// Error is returned by every Resolver implementation.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, err error) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}
