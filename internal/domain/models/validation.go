package models

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs tag validation on stream records.
func ValidateStruct(v interface{}) error {
	return validate.Struct(v)
}
