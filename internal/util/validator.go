package util

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

// European VAT numbers: two letter country prefix (optional) and 8 to 12 alphanumerics.
var vatPattern = regexp.MustCompile(`^([A-Z]{2})?[0-9A-Z]{8,12}$`)

func validateVAT(fl validator.FieldLevel) bool {
	return vatPattern.MatchString(fl.Field().String())
}

func validateProfileRole(fl validator.FieldLevel) bool {
	return model.Role(fl.Field().Uint()).Valid()
}

// RegisterValidators adds the custom binding tags "vat" and "profilerole" to gin's validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("vat", validateVAT); err != nil {
		return err
	}
	return v.RegisterValidation("profilerole", validateProfileRole)
}
