// Package validation decodes and validates request parameters.
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bdougie/contributor-enrichment/internal/api/response"
)

var (
	// validate and decoder are safe for concurrent use once init has registered everything.
	validate *validator.Validate
	decoder  *form.Decoder
)

func init() {
	validate = validator.New()
	decoder = form.NewDecoder()

	decoder.RegisterCustomTypeFunc(func(vals []string) (any, error) {
		if len(vals) == 0 || vals[0] == "" {
			return uuid.Nil, nil
		}
		id, err := uuid.Parse(vals[0])
		if err != nil {
			return nil, fmt.Errorf("invalid UUID: %w", err)
		}
		return id, nil
	}, uuid.UUID{})
}

// SnapshotHistoryQuery are the query parameters of the snapshot history endpoint.
type SnapshotHistoryQuery struct {
	WorkspaceID uuid.UUID `form:"workspace_id" validate:"required"`
	Limit       int       `form:"limit"        validate:"omitempty,min=1,max=90"`
}

// EnqueueContributorQuery are the query parameters of the contributor enqueue endpoint.
type EnqueueContributorQuery struct {
	WorkspaceID uuid.UUID `form:"workspace_id" validate:"required"`
}

// ValidateStruct validates a struct using go-playground/validator.
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationErrors(err)
	}

	return nil
}

// validationError keeps the field errors behind a readable message.
type validationError struct {
	msg    string
	fields validator.ValidationErrors
}

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Unwrap() error { return e.fields }

func formatValidationErrors(err error) error {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		messages := make([]string, 0, len(fieldErrors))
		for _, fe := range fieldErrors {
			messages = append(messages, formatFieldError(fe))
		}

		return &validationError{
			msg:    "validation failed: " + strings.Join(messages, "; "),
			fields: fieldErrors,
		}
	}

	return err
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

// GetValidationErrorDetails extracts field-level error details from validation errors.
func GetValidationErrorDetails(err error) []response.ErrorDetail {
	var details []response.ErrorDetail

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		for _, fe := range fieldErrors {
			details = append(details, response.ErrorDetail{
				Location: fe.Field(),
				Message:  formatFieldError(fe),
				Value:    fe.Value(),
			})
		}
	}

	return details
}

// RespondValidationError writes a 400 Problem Details response listing the invalid fields.
func RespondValidationError(w http.ResponseWriter, err error) {
	response.RespondProblem(w, response.ProblemDetails{
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: err.Error(),
		Errors: GetValidationErrorDetails(err),
	})
}

// ValidateAndDecodeQueryParams decodes the URL query into dst and validates it.
func ValidateAndDecodeQueryParams(r *http.Request, dst any) error {
	if err := decoder.Decode(dst, r.URL.Query()); err != nil {
		return fmt.Errorf("failed to decode query parameters: %w", err)
	}

	return ValidateStruct(dst)
}
