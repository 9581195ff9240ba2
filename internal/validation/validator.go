// Package validation wraps a single go-playground validator shared by the
// request allow-lists in the handler package and by the user stores.
//
// Field names in error details use the JSON tag, so a client sees
// {"email": "must be a valid email"} rather than Go field names.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/accountlink/internal/apperror"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the process-wide validator, configured on first use.
// validator.Validate caches struct metadata and is safe for concurrent use.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(fieldName)
		instance = v
	})
	return instance
}

// fieldName prefers the JSON name. Hidden fields (json:"-") fall back to the
// lower-camel Go name so "Password" still reports as "password".
func fieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "" || name == "-" {
		return strings.ToLower(fld.Name[:1]) + fld.Name[1:]
	}
	return name
}

// Struct validates s and converts failures into an apperror validation error
// with per-field details.
func Struct(s any) error {
	return toAppError(Validator().Struct(s))
}

// StructExcept validates s, skipping the named Go fields.
func StructExcept(s any, fields ...string) error {
	return toAppError(Validator().StructExcept(s, fields...))
}

func toAppError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: a programming mistake, not bad input.
		return fmt.Errorf("validation: %w", err)
	}
	details := ToDetails(err)
	return apperror.Invalid(summary(details), details)
}

// summary builds a one-line message such as "email must be a valid email".
// With several failing fields the first one (alphabetically) is named.
func summary(details map[string]string) string {
	if len(details) == 0 {
		return "validation failed"
	}
	first := ""
	for field := range details {
		if first == "" || field < first {
			first = field
		}
	}
	msg := first + " " + details[first]
	if len(details) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(details)-1)
	}
	return msg
}

// ToDetails converts validation or JSON decoding errors into field → message.
func ToDetails(err error) map[string]string {
	if err == nil {
		return nil
	}

	var se *json.SyntaxError
	var ute *json.UnmarshalTypeError
	if errors.As(err, &se) || errors.As(err, &ute) {
		return map[string]string{"payload": "invalid json"}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			out[fe.Field()] = formatFieldError(fe)
		}
		return out
	}

	return map[string]string{"payload": "invalid payload"}
}

func formatFieldError(fe validator.FieldError) string {
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return "is required when " + lowerFirst(param) + " is present"
	case "email":
		return "must be a valid email"
	case "url":
		return "must be a valid URL"
	case "min":
		if isNumberKind(fe.Kind()) {
			return "must be at least " + param
		}
		return "must be at least " + param + " characters long"
	case "max":
		if isNumberKind(fe.Kind()) {
			return "must be at most " + param
		}
		return "must be at most " + param + " characters long"
	case "eqfield":
		return "must match " + lowerFirst(param)
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(param), ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), param)
		}
		return "failed " + fe.Tag()
	}
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
