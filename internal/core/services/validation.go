package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the validate tags of v and reports failures as apperrors.ErrValidation.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", apperrors.ErrValidation, strings.Join(parts, ", "))
	}
	return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
}
