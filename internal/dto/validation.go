package dto

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

// Validator checks request bodies with go-playground tags plus the ledger
// rules nullifier and phase.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("nullifier", validateNullifier)
	v.RegisterValidation("phase", validatePhase)
	return &Validator{validate: v}
}

func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func validateNullifier(fl validator.FieldLevel) bool {
	_, err := lifecycle.ParseNullifier(fl.Field().String())
	return err == nil
}

func validatePhase(fl validator.FieldLevel) bool {
	_, err := lifecycle.ParsePhase(fl.Field().String())
	return err == nil
}

// ValidationMessage flattens err into one client-facing sentence. Errors that
// did not come from the validator yield a generic message.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", fe.Field(), fe.Param())
	case "nullifier":
		return fmt.Sprintf("%s must be a 32-byte hex string", fe.Field())
	case "phase":
		return fmt.Sprintf("%s must be one of Validation, RejectionReview, Verification", fe.Field())
	case "hexadecimal":
		return fmt.Sprintf("%s must be hexadecimal", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
