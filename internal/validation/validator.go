// Package validation wires go-playground/validator into Echo so request
// bodies are checked against their struct tags before reaching handlers.
package validation

import (
	"github.com/go-playground/validator/v10"
)

// Validator implements echo.Validator.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate checks the struct tags on i.  Handlers translate a non-nil
// error into a 422 response.
func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}
