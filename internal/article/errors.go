package article

import (
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindNotAuthorized
	KindAlreadyExists
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindNotAuthorized:
		return "not_authorized"
	case KindAlreadyExists:
		return "already_exists"
	default:
		return "internal"
	}
}

// Error is the classified failure returned by every Service operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrNotAuthorized = &Error{Kind: KindNotAuthorized}
	ErrAlreadyExists = &Error{Kind: KindAlreadyExists}
	ErrInternal      = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// Retryable reports whether repeating the call may succeed. Only identifier
// collisions qualify.
func (e *Error) Retryable() bool {
	return e.Kind == KindAlreadyExists
}

// HTTPStatus maps the kind onto the status a request handler should answer with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: message}
}

func notFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: message}
}

func notAuthorized(message string) *Error {
	return &Error{Kind: KindNotAuthorized, Code: "FORBIDDEN", Message: message}
}

func internalError(op string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: op, Err: err}
}
