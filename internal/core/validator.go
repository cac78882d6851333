package core

import (
	"log/slog"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"pathsynch/internal/types"
)

// Validator wraps go-playground/validator with the platform's custom rules
// and translates failures into structured AppErrors.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult aggregates errors and non-blocking warnings for one
// struct validation pass.
type ValidationResult struct {
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// IsValid reports whether the result contains no errors. Warnings do not
// make a result invalid.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// NewValidator creates a Validator and registers the custom tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New()

	// Report fields by their json names so clients see the wire field, not
	// the Go identifier.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// plan_tier: value must be a recognized plan tier name.
	_ = v.RegisterValidation("plan_tier", func(fl validator.FieldLevel) bool {
		val := fl.Field().String()
		for _, tier := range types.PlanOrder {
			if val == string(tier) {
				return true
			}
		}
		return false
	})

	// phone_digits: a phone value must contain at least ten digits once
	// punctuation is stripped. Empty values pass; combine with required
	// when the field is mandatory.
	_ = v.RegisterValidation("phone_digits", func(fl validator.FieldLevel) bool {
		val := fl.Field().String()
		if val == "" {
			return true
		}
		digits := 0
		for _, r := range val {
			if unicode.IsDigit(r) {
				digits++
			}
		}
		return digits >= 10
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates s against its struct tags. On failure it returns
// a *types.AppError whose code reflects the first violation and whose
// Details carry the full []ValidationError under "validation_errors".
func (v *Validator) ValidateStruct(s any) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}

	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// ValidateStructWithWarnings validates s and returns the full result rather
// than a single error, for callers that surface every violation at once.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	var result ValidationResult

	err := v.validate.Struct(s)
	if err == nil {
		return result
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError: the input was not a struct. Programming
		// error; surface it as a generic validation failure.
		v.logger.Error("validator received non-struct input", "error", err)
		result.Errors = append(result.Errors, ValidationError{
			Field:   "",
			Code:    string(types.ErrCodeValidationFailed),
			Message: "invalid input",
		})
		return result
	}

	for _, fe := range verrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    string(codeForTag(fe.Tag())),
			Message: messageForFieldError(fe),
		})
	}

	return result
}

// codeForTag maps a validator tag to the platform error code.
func codeForTag(tag string) types.ErrorCode {
	switch tag {
	case "required":
		return types.ErrCodeValidationMissingField
	case "email":
		return types.ErrCodeValidationInvalidEmail
	case "plan_tier":
		return types.ErrCodeValidationInvalidPlan
	default:
		return types.ErrCodeValidationFailed
	}
}

// messageForFieldError builds a client-facing message for one violation.
func messageForFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "url":
		return fe.Field() + " must be a valid URL"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "plan_tier":
		return fe.Field() + " must be a valid plan tier"
	case "phone_digits":
		return fe.Field() + " must contain at least 10 digits"
	default:
		return fe.Field() + " is invalid"
	}
}
