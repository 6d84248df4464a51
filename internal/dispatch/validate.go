package dispatch

import (
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("call_status", func(fl validator.FieldLevel) bool {
		return CallStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("unit_status", func(fl validator.FieldLevel) bool {
		return UnitStatus(fl.Field().String()).Valid()
	})
	return v
}
