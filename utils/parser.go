package utils

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/payrail/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("paymentmethod", func(fl validator.FieldLevel) bool {
		_, err := types.ParsePaymentMethod(fl.Field().String())
		return err == nil
	})
}

// Validate runs struct-tag validation and flattens the failures into a single
// MISSING_FIELD error.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
		} else {
			fields = append(fields, err.Error())
		}
		return &types.PaymentError{
			Code:    types.ErrMissingField,
			Message: fmt.Sprintf("validation failed: %s", strings.Join(fields, ", ")),
			Err:     err,
		}
	}
	return nil
}
