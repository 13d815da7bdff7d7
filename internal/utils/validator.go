package utils

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/SAP-F-2025/session-engine/internal/errors"
	"github.com/SAP-F-2025/session-engine/internal/models"
)

// Validator wraps go-playground/validator with the engine's custom rules.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New()
	RegisterCustomValidators(validate)
	return &Validator{validate: validate}
}

// Validate checks a struct and converts failures into the shared
// ValidationErrors type.
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		if ve := apperrors.ToValidationErrors(err); len(ve) > 0 {
			return ve
		}
		return err
	}
	return nil
}

// Custom validation functions

func ValidateQuestionType(fl validator.FieldLevel) bool {
	validTypes := []models.QuestionType{
		models.SingleChoice,
		models.TrueFalse,
		models.ShortAnswer,
		models.Essay,
	}

	value := fl.Field().String()
	for _, validType := range validTypes {
		if string(validType) == value {
			return true
		}
	}
	return false
}

func ValidateStartMode(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == string(models.StartModeIndividual) || value == string(models.StartModeSynchronized)
}

func ValidateDefinitionStatus(fl validator.FieldLevel) bool {
	validStatuses := []models.DefinitionStatus{
		models.StatusDraft,
		models.StatusScheduled,
		models.StatusActive,
		models.StatusCompleted,
	}

	value := fl.Field().String()
	for _, validStatus := range validStatuses {
		if string(validStatus) == value {
			return true
		}
	}
	return false
}

// RegisterCustomValidators registers all custom validators
func RegisterCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("question_type", ValidateQuestionType)
	validate.RegisterValidation("start_mode", ValidateStartMode)
	validate.RegisterValidation("definition_status", ValidateDefinitionStatus)

	// Register custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}
