package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/warp/supply-ledger/ledger"
)

// codeTooLong is reported for max= tag failures.
const codeTooLong = "too_long"

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkStruct runs the struct tags of req and returns the failures in the
// ledger FieldError shape, or nil.
func checkStruct(v *validator.Validate, req any) *ledger.ValidationError {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	verr := &ledger.ValidationError{}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add(ledger.FieldError{Field: "body", Code: ledger.CodeRequired, Message: err.Error()})
		return verr
	}

	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			verr.Add(ledger.FieldError{
				Field:   fe.Field(),
				Code:    ledger.CodeRequired,
				Message: fe.Field() + " is required",
			})
		case "max":
			verr.Add(ledger.FieldError{
				Field:   fe.Field(),
				Code:    codeTooLong,
				Message: fe.Field() + " must be at most " + fe.Param() + " characters",
			})
		default:
			verr.Add(ledger.FieldError{
				Field:   fe.Field(),
				Code:    fe.Tag(),
				Message: fe.Field() + " failed " + fe.Tag(),
			})
		}
	}
	return verr
}
