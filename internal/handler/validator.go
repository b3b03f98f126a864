package handler // request body validation

import (
	"errors"  // errors unwraps validator.ValidationErrors
	"reflect" // reflect reads json tags for field names
	"strings" // strings splits json tag options

	"github.com/go-playground/validator/v10" // validator checks struct tags
)

// Validator adapts go-playground/validator to echo.Validator and reports
// failures as ValidationError keyed by JSON field names.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a Validator that names fields after their json tag,
// so failures point at ["body","name"] rather than the Go field.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Validate implements echo.Validator.  A missing required field is reported
// with msg "Field required" and type "missing"; any other tag failure keeps
// the validator message and uses the tag as its type.
func (cv *Validator) Validate(i any) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		fieldErr := FieldError{Loc: []any{"body", fe.Field()}, Msg: fe.Error(), Type: fe.Tag()}
		if fe.Tag() == "required" {
			fieldErr.Msg, fieldErr.Type = "Field required", "missing"
		}
		out.Errors = append(out.Errors, fieldErr)
	}
	return out
}
