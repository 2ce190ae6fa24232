package authn

import "errors"

// Error is the machine-readable authentication failure taxonomy from §4.2.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Code + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

const (
	CodeInvalidToken = "INVALID_TOKEN"
	CodeExpiredToken = "EXPIRED_TOKEN"
	CodeUnknownKey   = "UNKNOWN_KEY"
	CodeClaimMissing = "CLAIM_MISSING"
	CodeNetwork      = "NETWORK"
)

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// IsAuthError reports whether err is (or wraps) an *Error.
func IsAuthError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
