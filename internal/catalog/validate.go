package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate      *validator.Validate
	serviceIDExpr = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("serviceid", func(fl validator.FieldLevel) bool {
		return serviceIDExpr.MatchString(fl.Field().String())
	})
}

// FieldIssue describes one invalid field.
type FieldIssue struct {
	Field   string
	Message string
	Code    string
}

// ValidationError lists every invalid field of a definition.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		parts = append(parts, i.Field+": "+i.Message)
	}
	return "invalid service definition: " + strings.Join(parts, "; ")
}

// Validate checks d against the definition rules.
func Validate(d ServiceDefinition) error {
	return ValidateStruct(d)
}

// ValidateStruct checks any struct carrying validate tags, such as admin
// request bodies, reporting failures as a *ValidationError.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating request: %w", err)
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		out.Issues = append(out.Issues, FieldIssue{
			Field:   fieldPath(fe.Namespace()),
			Message: message(fe),
			Code:    fe.Tag(),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "http_url":
		return "must be an http(s) URL"
	case "serviceid":
		return "may only contain letters, digits, '.', '_' and '-'"
	case "startswith":
		return "must start with " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must contain at least " + fe.Param() + " item(s)"
	case "gte", "lte":
		return "must be a valid HTTP status code"
	default:
		return "is invalid"
	}
}
