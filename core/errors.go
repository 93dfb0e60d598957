package core

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Error codes sent to clients.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeBusinessRule     = "BUSINESS_RULE_VIOLATION"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL_ERROR"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// AppError is an error meant to reach the client as is.
type AppError struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
}

func NewAppError(code, msg string, status int, details ...map[string]interface{}) *AppError {
	err := &AppError{Code: code, Message: msg, Status: status}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails returns a copy of the error carrying `details`.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func NotFound(msg string) *AppError {
	return NewAppError(CodeNotFound, msg, http.StatusNotFound)
}

func Forbidden(msg string) *AppError {
	return NewAppError(CodeForbidden, msg, http.StatusForbidden)
}

func Conflict(msg string) *AppError {
	return NewAppError(CodeConflict, msg, http.StatusConflict)
}

func BadRequest(msg string) *AppError {
	return NewAppError(CodeValidation, msg, http.StatusBadRequest)
}

// InvalidRef reports a referenced id that does not exist in the tenant.
func InvalidRef(field string) *AppError {
	return BadRequest(field+" invalido").WithDetails(map[string]interface{}{"field": field})
}

// BusinessRule builds a BUSINESS_RULE_VIOLATION error; status defaults to 422.
func BusinessRule(msg string, status ...int) *AppError {
	code := http.StatusUnprocessableEntity
	if len(status) > 0 {
		code = status[0]
	}
	return NewAppError(CodeBusinessRule, msg, code)
}

// AsAppError returns the *AppError at the root of err, if any.
func AsAppError(err error) (*AppError, bool) {
	appErr, ok := errors.Cause(err).(*AppError)
	return appErr, ok
}

// IsNotFound reports whether err is rooted in a NOT_FOUND AppError.
func IsNotFound(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == CodeNotFound
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"message"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldError is a shortcut for a single-field ValidationError.
func NewFieldError(field, msg string) error {
	return &ValidationError{Err: errors.New(msg), Fields: []FieldError{{Field: field, Error: msg}}}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
