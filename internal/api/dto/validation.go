package dto

import (
	"errors"
	"sync"

	"github.com/cuongbtq/transfer-market/internal/marketplace"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the custom binding rules to gin's validator. Safe to
// call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("gin binding validator is not go-playground/validator")
			return
		}
		err = v.RegisterValidation("iban", validateIBAN)
	})
	return err
}

func validateIBAN(fl validator.FieldLevel) bool {
	return marketplace.ValidIBAN(marketplace.NormalizeIBAN(fl.Field().String()))
}

// FieldErrors flattens validator errors into field -> rule
func FieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
