package handler

import (
	"net/http"
	"strconv"

	"inventory-service/internal/predictor"
	"inventory-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// PredictionHandler serves the forecasting API.
type PredictionHandler struct {
	selector *predictor.Selector
}

// NewPredictionHandler creates a prediction handler.
func NewPredictionHandler(selector *predictor.Selector) *PredictionHandler {
	return &PredictionHandler{selector: selector}
}

// GenerateAll produces a prediction for every active product.
func (h *PredictionHandler) GenerateAll(c echo.Context) error {
	predictions, err := h.selector.BatchGenerate()
	if err != nil {
		logger.FromEcho(c).Error("Batch prediction failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, predictions)
}

// GenerateForProduct predicts demand for one product, ?daysAhead= horizon.
func (h *PredictionHandler) GenerateForProduct(c echo.Context) error {
	daysAhead := 7
	if raw := c.QueryParam("daysAhead"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "daysAhead must be a positive integer",
			})
		}
		daysAhead = parsed
	}

	prediction, err := h.selector.Predict(c.Param("productId"), daysAhead)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, prediction)
}

// List returns stored predictions, ?productId= filtered.
func (h *PredictionHandler) List(c echo.Context) error {
	predictions, err := h.selector.List(c.QueryParam("productId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, predictions)
}

// Latest returns the newest prediction per active product.
func (h *PredictionHandler) Latest(c echo.Context) error {
	predictions, err := h.selector.Latest()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, predictions)
}

// Trends returns the demand trend analysis.
func (h *PredictionHandler) Trends(c echo.Context) error {
	trends, err := h.selector.AnalyzeTrends()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, trends)
}

// ModelInfo returns the stored model snapshot for a product.
func (h *PredictionHandler) ModelInfo(c echo.Context) error {
	info, err := h.selector.GetModelInfo(c.Param("productId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// TrainAll retrains models for every active product.
func (h *PredictionHandler) TrainAll(c echo.Context) error {
	result, err := h.selector.TrainAll()
	if err != nil {
		logger.FromEcho(c).Error("Train-all failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}
