package shaper

import "fmt"

type Code string

const (
	CodeInvalidIdentifier Code = "invalid_identifier"
	CodeTooManyTenants    Code = "too_many_tenants"
	CodePayloadTooLarge   Code = "payload_too_large"
)

var errorMessages = map[Code]string{
	CodeInvalidIdentifier: "Invalid tenant identifier",
	CodeTooManyTenants:    "Too many tenants for principal",
	CodePayloadTooLarge:   "Tenant claim exceeds size budget",
}

// Error reports why an assignment could not be turned into a claim payload.
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
