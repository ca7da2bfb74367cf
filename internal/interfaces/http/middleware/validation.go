package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/erp/stockengine/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupValidator makes validation errors report JSON (or form) field names
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
	}
}

// FormatValidationErrors formats validation errors into a standard response.
// Errors that are not field validation failures (malformed JSON) produce a
// response without details.
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			details = append(details, dto.ValidationDetail{
				Field:   e.Field(),
				Message: getValidationMessage(e),
			})
		}
	}

	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

// HandleValidationError writes a 400 validation error response
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, GetRequestID(c)))
}

// getValidationMessage returns a human-readable validation message
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		if e.Type().Kind() == reflect.Slice {
			return "Must contain at least " + e.Param() + " entries"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "datetime":
		return "Must be a date in the format " + e.Param()
	case "nefield":
		return "Must differ from " + e.Param()
	case "dive":
		return "Invalid entry"
	default:
		return "Invalid value"
	}
}
