package handler

import (
	"net/http"
	"strconv"

	"inventory-service/internal/analytics"
	"inventory-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AnalyticsHandler serves the read-only rollup API.
type AnalyticsHandler struct {
	aggregator *analytics.Aggregator
}

// NewAnalyticsHandler creates an analytics handler.
func NewAnalyticsHandler(aggregator *analytics.Aggregator) *AnalyticsHandler {
	return &AnalyticsHandler{aggregator: aggregator}
}

// Dashboard returns the landing-page rollup.
func (h *AnalyticsHandler) Dashboard(c echo.Context) error {
	dashboard, err := h.aggregator.GetDashboard()
	if err != nil {
		logger.FromEcho(c).Error("Dashboard rollup failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dashboard)
}

// InventoryValue returns the current stock value at cost.
func (h *AnalyticsHandler) InventoryValue(c echo.Context) error {
	value, err := h.aggregator.InventoryValue()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"total_value": value})
}

// SalesReport totals sales over ?startDate=&endDate=.
func (h *AnalyticsHandler) SalesReport(c echo.Context) error {
	startDate, err := parseDateParam(c.QueryParam("startDate"))
	if err != nil {
		return respondError(c, err)
	}
	endDate, err := parseDateParam(c.QueryParam("endDate"))
	if err != nil {
		return respondError(c, err)
	}

	report, err := h.aggregator.GetSalesReport(startDate, endDate)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// TopProducts ranks the best sellers of the last 30 days, ?limit= capped.
func (h *AnalyticsHandler) TopProducts(c echo.Context) error {
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	top, err := h.aggregator.GetTopProducts(limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, top)
}

// SystemHealth returns the derived health rollup.
func (h *AnalyticsHandler) SystemHealth(c echo.Context) error {
	health, err := h.aggregator.GetSystemHealth()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, health)
}
