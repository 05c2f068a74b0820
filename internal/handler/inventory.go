package handler

import (
	"net/http"

	"inventory-service/internal/ledger"
	"inventory-service/internal/model"
	"inventory-service/internal/stock"
	"inventory-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TransactionRequest is the payload for recording a stock transaction.
type TransactionRequest struct {
	ProductID       string `json:"product_id"`
	TransactionType string `json:"transaction_type"`
	Quantity        int    `json:"quantity"`
	Notes           string `json:"notes"`
}

// InventoryHandler serves the stock ledger API.
type InventoryHandler struct {
	stocks *stock.Service
	store  *ledger.Store
}

// NewInventoryHandler creates an inventory handler.
func NewInventoryHandler(stocks *stock.Service, store *ledger.Store) *InventoryHandler {
	return &InventoryHandler{stocks: stocks, store: store}
}

// RecordTransaction appends one stock-affecting event.
func (h *InventoryHandler) RecordTransaction(c echo.Context) error {
	log := logger.FromEcho(c)

	var req TransactionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid request data",
		})
	}
	if req.ProductID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "product_id is required",
		})
	}

	entry, err := h.stocks.RecordTransaction(req.ProductID, model.TransactionType(req.TransactionType), req.Quantity, req.Notes)
	if err != nil {
		log.Warn("Transaction rejected",
			zap.String("product_id", req.ProductID),
			zap.String("type", req.TransactionType),
			zap.Error(err))
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, entry)
}

// CurrentStock lists the stock snapshot for every catalog product.
func (h *InventoryHandler) CurrentStock(c echo.Context) error {
	levels, err := h.stocks.AllCurrentStock()
	if err != nil {
		logger.FromEcho(c).Error("Failed to list current stock", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, levels)
}

// ProductHistory lists a product's ledger entries, newest first.
func (h *InventoryHandler) ProductHistory(c echo.Context) error {
	productID := c.Param("productId")

	startDate, err := parseDateParam(c.QueryParam("startDate"))
	if err != nil {
		return respondError(c, err)
	}
	endDate, err := parseDateParam(c.QueryParam("endDate"))
	if err != nil {
		return respondError(c, err)
	}

	entries, err := h.store.History(productID, startDate, endDate)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// LowStock lists active products at or below their reorder point.
func (h *InventoryHandler) LowStock(c echo.Context) error {
	low, err := h.stocks.LowStockProducts()
	if err != nil {
		logger.FromEcho(c).Error("Failed to list low stock", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, low)
}

// History lists ledger entries across all products, newest first.
func (h *InventoryHandler) History(c echo.Context) error {
	startDate, err := parseDateParam(c.QueryParam("startDate"))
	if err != nil {
		return respondError(c, err)
	}
	endDate, err := parseDateParam(c.QueryParam("endDate"))
	if err != nil {
		return respondError(c, err)
	}

	entries, err := h.store.AllHistory(startDate, endDate)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}
