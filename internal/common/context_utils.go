package common

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// DateLayout is the calendar date format accepted and returned by the API
const DateLayout = "2006-01-02"

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	details := map[string]string{
		field: message,
	}
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", "Validation failed", details))
}

// SendClientError sends a client error response
func SendClientError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("CLIENT_ERROR", message, nil))
}

// SendServerError sends a server error response
func SendServerError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, CreateErrorResponse("SERVER_ERROR", message, nil))
}

// SendNotFoundError sends a not found error response
func SendNotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, CreateErrorResponse("NOT_FOUND", fmt.Sprintf("%s not found", resource), nil))
}

// SendError translates a service error into the matching response
func SendError(c echo.Context, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return SendValidationError(c, verr.Field, verr.Message)
	}

	status := HTTPStatusFromErr(err)
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("request failed: %v", err)
		return SendServerError(c, "Internal server error")
	}

	var details map[string]string
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		details = map[string]string{"hint": strings.Join(hints, "; ")}
	}
	return c.JSON(status, CreateErrorResponse(ErrorCode(err), err.Error(), details))
}

// ValidateUUID parses a path or query identifier
func ValidateUUID(idStr string, fieldName string) (uuid.UUID, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return uuid.Nil, NewValidationError(fieldName, "is required")
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, NewValidationError(fieldName, "must be a valid UUID")
	}
	return id, nil
}

// ValidatePaginationParams reads limit/offset query params with bounds
func ValidatePaginationParams(c echo.Context) (limit, offset int, err error) {
	limit, offset = 20, 0

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 100 {
			return 0, 0, NewValidationError("limit", "must be between 1 and 100")
		}
	}
	if raw := c.QueryParam("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, NewValidationError("offset", "must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// ParseDate parses an optional YYYY-MM-DD value; empty input yields the zero time.
func ParseDate(value, fieldName string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	date, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, NewValidationError(fieldName, "must be in YYYY-MM-DD format")
	}
	return date, nil
}
