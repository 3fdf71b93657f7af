package validation

import (
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"metadata-enricher/internal/common/errors"
)

// StructValidator validates configuration structs using go-playground/validator tags
type StructValidator struct {
	validator *validator.Validate
}

// FieldError is a single failed rule with the json name of the field
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// NewStructValidator creates a validator with the enrichment-specific rules registered
func NewStructValidator() *StructValidator {
	v := validator.New()
	registerEnrichmentValidators(v)

	// report json names so messages match the config documents
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &StructValidator{validator: v}
}

// ValidateStruct validates s and returns a config error listing every failed field
func (sv *StructValidator) ValidateStruct(s interface{}) error {
	err := sv.validator.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrors := sv.FieldErrors(err)
	messages := make([]string, len(fieldErrors))
	for i, fe := range fieldErrors {
		messages[i] = fe.Message
	}
	if len(messages) == 1 {
		return errors.ConfigError(messages[0])
	}
	return errors.ConfigError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")))
}

// ValidateVar validates a single value against a tag expression
func (sv *StructValidator) ValidateVar(field interface{}, tag string) error {
	if err := sv.validator.Var(field, tag); err != nil {
		return errors.ConfigError(err.Error())
	}
	return nil
}

// FieldErrors flattens a validator error into FieldErrors
func (sv *StructValidator) FieldErrors(err error) []FieldError {
	var out []FieldError

	var validationErrs validator.ValidationErrors
	if !asValidationErrors(err, &validationErrs) {
		return []FieldError{{Field: "unknown", Tag: "error", Message: err.Error()}}
	}

	for _, fe := range validationErrs {
		out = append(out, FieldError{
			Field:   namespaceOf(fe),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: formatFieldError(fe),
		})
	}
	return out
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// namespaceOf drops the root struct name: "Config.adapter_config.http_method" -> "adapter_config.http_method"
func namespaceOf(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func formatFieldError(fe validator.FieldError) string {
	field := namespaceOf(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", field)
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", field)
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, fe.Param())
	case "http_method":
		return fmt.Sprintf("field '%s' must be a valid HTTP method", field)
	case "dotted_path":
		return fmt.Sprintf("field '%s' must be a dot-separated path without empty segments", field)
	case "regexp":
		return fmt.Sprintf("field '%s' must be a valid regular expression", field)
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", field, fe.Tag())
	}
}

var httpMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
}

func registerEnrichmentValidators(v *validator.Validate) {
	v.RegisterValidation("http_method", func(fl validator.FieldLevel) bool {
		method := strings.ToUpper(fl.Field().String())
		for _, m := range httpMethods {
			if method == m {
				return true
			}
		}
		return false
	})

	v.RegisterValidation("dotted_path", func(fl validator.FieldLevel) bool {
		path := fl.Field().String()
		if path == "" {
			return true
		}
		for _, segment := range strings.Split(path, ".") {
			if segment == "" {
				return false
			}
		}
		return true
	})

	v.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	})
}
