// Package apierror maps failures onto the HTTP error taxonomy every handler
// shares: a status code, a message, and optional structured details.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/arnavshah/carelink-api-go/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Error is a failure with a known HTTP status.
type Error struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ValidationDetails is the details payload of a 400.
type ValidationDetails struct {
	FieldErrors map[string][]string `json:"fieldErrors"`
	FormErrors  []string            `json:"formErrors"`
}

func Unauthorized(msg string) *Error {
	if msg == "" {
		msg = "Unauthorized"
	}
	return &Error{Status: http.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	if msg == "" {
		msg = "Forbidden"
	}
	return &Error{Status: http.StatusForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	if msg == "" {
		msg = "Not found"
	}
	return &Error{Status: http.StatusNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Status: http.StatusConflict, Message: msg}
}

func BadRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

func TooManyRequests() *Error {
	return &Error{Status: http.StatusTooManyRequests, Message: "Too many requests"}
}

// Internal wraps an unexpected failure. The message is never shown to clients.
func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "Internal server error", Err: err}
}

// Field builds a 400 for a single field.
func Field(field, msg string) *Error {
	return Validation(map[string][]string{field: {msg}}, nil)
}

// Validation builds a 400 with field and form errors.
func Validation(fieldErrors map[string][]string, formErrors []string) *Error {
	if fieldErrors == nil {
		fieldErrors = map[string][]string{}
	}
	if formErrors == nil {
		formErrors = []string{}
	}
	return &Error{
		Status:  http.StatusBadRequest,
		Message: "Invalid request",
		Details: ValidationDetails{FieldErrors: fieldErrors, FormErrors: formErrors},
	}
}

// FromBinding converts a gin binding failure into a 400.
func FromBinding(err error) *Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string][]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = append(fields[fe.Field()], message(fe))
		}
		return Validation(fields, nil)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return Field(typeErr.Field, fmt.Sprintf("Expected %s", typeErr.Type.String()))
	}
	return Validation(nil, []string{"Malformed request body"})
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "email":
		return "Invalid email"
	case "gt":
		return "Must be greater than " + fe.Param()
	case "gte":
		return "Must be at least " + fe.Param()
	case "lte", "max":
		return "Must be at most " + fe.Param()
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "oneof":
		return "Must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gtfield":
		return fmt.Sprintf("%s must be after %s", fe.Field(), lowerFirst(fe.Param()))
	case "required_if":
		return "Required"
	}
	return "Invalid value"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// From classifies any error returned by a handler.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var te *workflow.TransitionError
	if errors.As(err, &te) {
		return &Error{Status: http.StatusConflict, Message: te.Error(), Err: err}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Status: http.StatusNotFound, Message: "Not found", Err: err}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &Error{Status: http.StatusConflict, Message: "Already exists", Err: err}
	}
	return Internal(err)
}

// Body renders e for the client. Development builds expose the cause of a 500.
func (e *Error) Body(dev bool) map[string]any {
	body := map[string]any{"error": e.Message}
	if e.Details != nil {
		body["details"] = e.Details
	}
	if dev && e.Status >= http.StatusInternalServerError && e.Err != nil {
		body["details"] = map[string]any{"stack": fmt.Sprintf("%+v", e.Err)}
	}
	return body
}
