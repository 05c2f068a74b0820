package handler

import (
	"errors"
	"net/http"
	"time"

	"inventory-service/internal/apperr"

	"github.com/labstack/echo/v4"
)

// respondError maps the service error taxonomy onto HTTP status codes.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, apperr.ErrProductNotFound), errors.Is(err, apperr.ErrAlertNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case apperr.IsValidation(err), errors.Is(err, apperr.ErrInvalidTransition):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrForecastUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
}

// parseDateParam accepts either a date or an RFC3339 timestamp query value.
func parseDateParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, apperr.Validation("invalid date, expected YYYY-MM-DD or RFC3339")
	}
	return &t, nil
}
