package auth

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindStateMismatch       Kind = "state_mismatch"
	KindTokenExchangeFailed Kind = "token_exchange_failed"
	KindUserInfoUnavailable Kind = "user_info_unavailable"
	KindMissingCredential   Kind = "missing_credential"
	KindInvalidCredential   Kind = "invalid_credential"
	KindExpired             Kind = "expired"
	KindUserNotFound        Kind = "user_not_found"
	KindInternal            Kind = "internal"
)

// publicMessages is the only text about an auth failure that reaches clients.
var publicMessages = map[Kind]string{
	KindStateMismatch:       "Invalid state parameter",
	KindTokenExchangeFailed: "Authentication with the identity provider failed",
	KindUserInfoUnavailable: "Could not retrieve user information",
	KindMissingCredential:   "Authentication required",
	KindInvalidCredential:   "Invalid token",
	KindExpired:             "Token expired",
	KindUserNotFound:        "User not found",
	KindInternal:            "Authentication failed",
}

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// PublicMessage is safe to return to clients; it never includes the cause.
func (e *Error) PublicMessage() string {
	if msg, ok := publicMessages[e.Kind]; ok {
		return msg
	}
	return publicMessages[KindInternal]
}

func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func StateMismatch(message string) *Error {
	return NewError(KindStateMismatch, message, nil)
}

func TokenExchangeFailed(message string, cause error) *Error {
	return NewError(KindTokenExchangeFailed, message, cause)
}

func UserInfoUnavailable(message string, cause error) *Error {
	return NewError(KindUserInfoUnavailable, message, cause)
}

func MissingCredential() *Error {
	return NewError(KindMissingCredential, "no credential presented", nil)
}

func InvalidCredential(cause error) *Error {
	return NewError(KindInvalidCredential, "credential rejected", cause)
}

func Expired(cause error) *Error {
	return NewError(KindExpired, "credential expired", cause)
}

func UserNotFound(subject string) *Error {
	return NewError(KindUserNotFound, fmt.Sprintf("subject %q does not resolve", subject), nil)
}

func Internal(message string, cause error) *Error {
	return NewError(KindInternal, message, cause)
}

// KindOf returns the kind of the first *Error in err's chain. Errors that are
// not auth errors report KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// AsError returns err as an *Error, wrapping foreign errors as KindInternal.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal("unexpected error", err)
}
