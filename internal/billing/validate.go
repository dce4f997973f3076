package billing

import (
	"errors"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/tagihan-wa/internal/money"
)

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var defaultValidate = NewValidator()

func (s *Service) check(v any) error {
	validate := s.Validate
	if validate == nil {
		validate = defaultValidate
	}
	if err := validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError converts the first validator failure into a field-level
// input validation fault.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return &money.Error{Kind: money.KindInputValidation, Field: field, Message: describe(fe), Err: err}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "alpha":
		return "must contain letters only"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
