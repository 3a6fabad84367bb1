package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"parley/internal/models"
	"parley/internal/observability"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

var validate = validator.New()

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps an AppError code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeForbidden, models.CodeBlocked:
		return fiber.StatusForbidden
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeConflict:
		return fiber.StatusConflict
	case models.CodeUnauthenticated:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

// respondWithError writes the standardized error response for err.
// Storage failures are logged and never leak driver details to the client.
func respondWithError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		appErr = models.NewStorageError(err)
	}

	status := statusFor(appErr.Code)
	if status == fiber.StatusInternalServerError {
		observability.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
	}
	return c.Status(status).JSON(ErrorResponse{Error: appErr.Message, Code: appErr.Code})
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = respondWithError(c, models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "userId" -> "user ID", "messageId" -> "message ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// bindJSON parses the request body into dst and validates its struct tags.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func bindJSON(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		_ = respondWithError(c, models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	if err := validate.Struct(dst); err != nil {
		_ = respondWithError(c, models.NewValidationError(describeValidation(err)))
		return errResponseWritten
	}
	return nil
}

func describeValidation(err error) string {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		first := vErrs[0]
		return fmt.Sprintf("Field %s failed rule %s", first.Field(), first.Tag())
	}
	return "Invalid request body"
}

// parseHistoryQuery reads page, page_size and after_id query parameters.
// The service clamps the page size; only negative values are rejected here.
func parseHistoryQuery(c *fiber.Ctx) (models.HistoryQuery, error) {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 0)
	afterID := c.QueryInt("after_id", 0)
	if page < 0 || pageSize < 0 || afterID < 0 {
		_ = respondWithError(c, models.NewValidationError("Invalid pagination parameters"))
		return models.HistoryQuery{}, errResponseWritten
	}
	return models.HistoryQuery{Page: page, PageSize: pageSize, AfterID: uint(afterID)}, nil
}
