package http

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// Invalid builds a single-entry ValidationErrors.
func Invalid(code, field, message string) ValidationErrors {
	return ValidationErrors{{Code: code, Field: field, Message: message}}
}

var requestValidator = newRequestValidator()

// newRequestValidator reports fields by their JSON names, which is what
// clients actually sent.
func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// Bind decodes the request into req, then applies defaults and validates.
func Bind(c echo.Context, req interface{}) ValidationErrors {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return Invalid("ERR_BIND", "", fmt.Sprint(he.Message))
		}
		return Invalid("ERR_BIND", "", err.Error())
	}
	return Validate(c.Request().Context(), req)
}

// Validate applies `default` tags to zero fields and checks `validate` tags.
func Validate(ctx context.Context, req interface{}) ValidationErrors {
	if err := defaults.Set(req); err != nil {
		return Invalid("ERR_DEFAULTS", "", err.Error())
	}
	err := requestValidator.StructCtx(ctx, req)
	if err == nil {
		return nil
	}
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return Invalid("ERR_UNKNOWN", "", err.Error())
	}
	out := make(ValidationErrors, 0, len(fes))
	for _, fe := range fes {
		out = append(out, fieldError(fe))
	}
	return out
}

var ruleText = map[string]string{
	"required": "is required",
	"gt":       "must be greater than %s",
	"gte":      "must be at least %s",
	"lt":       "must be less than %s",
	"lte":      "must be at most %s",
	"min":      "must be at least %s",
	"max":      "must be at most %s",
	"oneof":    "must be one of %s",
}

func fieldError(fe validator.FieldError) ValidationError {
	tag, param := fe.Tag(), fe.Param()
	text, ok := ruleText[tag]
	if !ok {
		text = "failed " + tag
	}
	if strings.Contains(text, "%s") {
		text = fmt.Sprintf(text, param)
	}
	if (tag == "min" || tag == "max") && fe.Kind() == reflect.String {
		text += " characters"
	}
	if (tag == "min" || tag == "max") && fe.Kind() == reflect.Slice {
		text += " items"
	}

	ve := ValidationError{
		Code:    "ERR_" + strings.ToUpper(tag),
		Field:   fe.Field(),
		Message: fe.Field() + " " + text,
	}
	if param != "" {
		ve.Params = map[string]interface{}{"limit": param}
		if tag == "oneof" {
			ve.Params = map[string]interface{}{"options": strings.Fields(param)}
		}
	}
	return ve
}
