package handler

import (
	"net/http"

	"inventory-service/internal/alert"
	"inventory-service/internal/model"
	"inventory-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AlertStatusRequest is the payload for status transitions.
type AlertStatusRequest struct {
	Status string `json:"status"`
}

// AlertHandler serves the alert API.
type AlertHandler struct {
	engine *alert.Engine
}

// NewAlertHandler creates an alert handler.
func NewAlertHandler(engine *alert.Engine) *AlertHandler {
	return &AlertHandler{engine: engine}
}

// Generate runs a scan over all active products.
func (h *AlertHandler) Generate(c echo.Context) error {
	created, err := h.engine.ScanAndGenerate()
	if err != nil {
		logger.FromEcho(c).Error("Alert scan failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// List returns alerts, optionally filtered by ?status=.
func (h *AlertHandler) List(c echo.Context) error {
	status := model.AlertStatus(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "unknown alert status",
		})
	}

	alerts, err := h.engine.List(status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, alerts)
}

// Active returns alerts in the ACTIVE state.
func (h *AlertHandler) Active(c echo.Context) error {
	alerts, err := h.engine.List(model.AlertActive)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, alerts)
}

// Statistics returns counts by status and type.
func (h *AlertHandler) Statistics(c echo.Context) error {
	stats, err := h.engine.GetStatistics()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// ByProduct returns all alerts for one product.
func (h *AlertHandler) ByProduct(c echo.Context) error {
	alerts, err := h.engine.ListByProduct(c.Param("productId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, alerts)
}

// UpdateStatus transitions an alert's status.
func (h *AlertHandler) UpdateStatus(c echo.Context) error {
	var req AlertStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid request data",
		})
	}

	updated, err := h.engine.Transition(c.Param("id"), model.AlertStatus(req.Status))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Dismiss moves an alert to DISMISSED.
func (h *AlertHandler) Dismiss(c echo.Context) error {
	updated, err := h.engine.Dismiss(c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}
