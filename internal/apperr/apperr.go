// Package apperr defines the error taxonomy shared by domain packages and the
// HTTP layer.
//
// Domain errors stay typed (InsufficientStockError, coupon.RuleError, ...) and
// report their category through the Kinder interface. The HTTP layer maps a
// Kind to a status code without knowing every concrete type.
package apperr

import (
	"net/http"

	"github.com/go-faster/errors"
)

// Kind classifies an error for presentation purposes.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindAuth
	KindPermission
	KindConflict
	KindBusinessRule
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	case KindPermission:
		return "permission"
	case KindConflict:
		return "conflict"
	case KindBusinessRule:
		return "business_rule"
	default:
		return "internal"
	}
}

// HTTPStatus returns the response status code for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindBusinessRule:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Kinder is implemented by errors that know their category.
type Kinder interface {
	Kind() Kind
}

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a generic categorized error with a user-visible message.
type Error struct {
	kind    Kind
	Message string
	Fields  []FieldError
}

func (e *Error) Error() string { return e.Message }

// Kind implements Kinder.
func (e *Error) Kind() Kind { return e.kind }

// New returns an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, Message: msg}
}

// Validation returns a validation error carrying field-level issues.
func Validation(msg string, fields ...FieldError) *Error {
	return &Error{kind: KindValidation, Message: msg, Fields: fields}
}

// NotFound returns a not-found error for the named entity.
func NotFound(entity string) *Error {
	return &Error{kind: KindNotFound, Message: entity + " not found"}
}

// Conflict returns a conflict error.
func Conflict(msg string) *Error {
	return &Error{kind: KindConflict, Message: msg}
}

// Unauthorized returns an authentication error.
func Unauthorized(msg string) *Error {
	return &Error{kind: KindAuth, Message: msg}
}

// Forbidden returns the standard permission error.
func Forbidden() *Error {
	return &Error{kind: KindPermission, Message: "You do not have permission to perform this action"}
}

// BusinessRule returns a business rule violation.
func BusinessRule(msg string) *Error {
	return &Error{kind: KindBusinessRule, Message: msg}
}

// KindOf reports the kind of err, walking the wrap chain. Errors that do not
// implement Kinder are internal.
func KindOf(err error) Kind {
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// FieldsOf returns field-level issues attached to err, if any.
func FieldsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// MessageOf returns the user-visible message of the first categorized
// error in err's chain, without the wrap prefixes added along the way.
func MessageOf(err error) string {
	var k Kinder
	if errors.As(err, &k) {
		if e, ok := k.(error); ok {
			return e.Error()
		}
	}
	return "Internal server error"
}
