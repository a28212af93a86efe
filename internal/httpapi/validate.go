package httpapi

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	instance      *validator.Validate
)

// requestValidator returns the package's singleton go-playground/validator/v10
// instance, grounded on the teacher's interfaces/http/validation.GetValidator
// singleton (a cached *validator.Validate reused across requests rather than
// rebuilt per call).
func requestValidator() *validator.Validate {
	validatorOnce.Do(func() {
		instance = validator.New()
	})
	return instance
}

// validationMessage flattens go-playground/validator's field errors into one
// string for writeError, the same struct-tag-driven approach the teacher's
// Validator.formatValidationError takes, simplified to this API's
// single-message error envelope rather than the teacher's per-field
// ValidationErrors DTO.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, e.Field()+": failed "+e.Tag()+" validation")
	}
	return strings.Join(msgs, "; ")
}
