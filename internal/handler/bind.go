package handler

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/xenking/oolio-shop/internal/apperr"
)

// newValidator returns a validator reporting fields by their JSON names.
func newValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindJSON decodes the request body into out and validates it. Failures come
// back as validation errors listing each offending field.
func (h *Handler) bindJSON(c *gin.Context, out any) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return apperr.Validation("Invalid request body",
			apperr.FieldError{Field: "body", Message: "must be valid JSON"})
	}
	if err := h.validate.Struct(out); err != nil {
		var ve validatorv10.ValidationErrors
		if !errors.As(err, &ve) {
			return errors.Wrap(err, "validate request")
		}
		fields := make([]apperr.FieldError, 0, len(ve))
		for _, fe := range ve {
			fields = append(fields, apperr.FieldError{
				Field:   fieldPath(fe.Namespace()),
				Message: describe(fe),
			})
		}
		return apperr.Validation("Validation failed", fields...)
	}
	return nil
}

// fieldPath drops the root struct name from a namespace like
// "placeOrderBody.items[0].quantity".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must contain at least " + fe.Param() + " item(s)"
		}
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "uuid":
		return "must be a valid id"
	default:
		return "is invalid"
	}
}

func queryInt(c *gin.Context, key string) int {
	n, _ := strconv.Atoi(c.Query(key))
	return n
}
