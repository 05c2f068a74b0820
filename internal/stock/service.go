// Package stock derives stock status from the ledger and orchestrates
// transaction recording.
package stock

import (
	"fmt"

	"inventory-service/internal/apperr"
	"inventory-service/internal/ledger"
	"inventory-service/internal/model"
	"inventory-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StockStatus classifies a balance against the product's thresholds.
type StockStatus string

const (
	StatusCritical StockStatus = "CRITICAL"
	StatusLow      StockStatus = "LOW"
	StatusNormal   StockStatus = "NORMAL"
)

// Retrainer schedules a best-effort background model refresh for a product.
// Scheduling must never block and a scheduling failure must never surface to
// the transaction that triggered it.
type Retrainer interface {
	Schedule(productID string)
}

// StockLevel is the per-product snapshot returned by stock listings.
type StockLevel struct {
	ProductID     string      `json:"product_id"`
	SKU           string      `json:"sku"`
	Name          string      `json:"name"`
	CurrentStock  int         `json:"current_stock"`
	MinStockLevel int         `json:"min_stock_level"`
	ReorderPoint  int         `json:"reorder_point"`
	Status        StockStatus `json:"status"`
}

// LowStockProduct is the shape returned by the low-stock listing.
type LowStockProduct struct {
	ProductID       string `json:"product_id"`
	SKU             string `json:"sku"`
	Name            string `json:"name"`
	CurrentStock    int    `json:"current_stock"`
	ReorderPoint    int    `json:"reorder_point"`
	ReorderQuantity int    `json:"reorder_quantity"`
	Deficit         int    `json:"deficit"`
}

// Service records transactions and derives stock snapshots.
type Service struct {
	db        *gorm.DB
	store     *ledger.Store
	retrainer Retrainer
	logger    *zap.Logger
}

// NewService creates a stock service. retrainer may be nil, in which case
// sales do not trigger model refreshes.
func NewService(db *gorm.DB, store *ledger.Store, retrainer Retrainer, logger *zap.Logger) *Service {
	return &Service{db: db, store: store, retrainer: retrainer, logger: logger}
}

// RecordTransaction validates and appends one stock-affecting event. After a
// successful SALE the product's model refresh is scheduled in the background;
// the transaction result does not depend on it.
func (s *Service) RecordTransaction(productID string, kind model.TransactionType, quantity int, notes string) (*model.LedgerEntry, error) {
	// Product existence is checked by the ledger append itself.
	entry, err := s.store.Append(productID, kind, quantity, notes)
	if err != nil {
		return nil, err
	}

	prometheus.TransactionsCounter.WithLabelValues(string(kind)).Inc()

	if kind == model.TransactionSale && s.retrainer != nil {
		s.retrainer.Schedule(productID)
	}

	return entry, nil
}

// Snapshot returns the product's current balance and derived status.
func (s *Service) Snapshot(productID string) (int, StockStatus, error) {
	var product model.Product
	if err := s.db.First(&product, "id = ?", productID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, "", fmt.Errorf("product %s: %w", productID, apperr.ErrProductNotFound)
		}
		return 0, "", err
	}

	balance, err := s.store.LatestBalance(productID)
	if err != nil {
		return 0, "", err
	}

	return balance, deriveStatus(balance, product.ReorderPoint, product.MinStockLevel), nil
}

// AllCurrentStock returns a snapshot for every catalog product, active or not.
func (s *Service) AllCurrentStock() ([]StockLevel, error) {
	var products []model.Product
	if err := s.db.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	levels := make([]StockLevel, 0, len(products))
	for _, product := range products {
		balance, err := s.store.LatestBalance(product.ID)
		if err != nil {
			return nil, err
		}
		levels = append(levels, StockLevel{
			ProductID:     product.ID,
			SKU:           product.SKU,
			Name:          product.Name,
			CurrentStock:  balance,
			MinStockLevel: product.MinStockLevel,
			ReorderPoint:  product.ReorderPoint,
			Status:        deriveStatus(balance, product.ReorderPoint, product.MinStockLevel),
		})
	}
	return levels, nil
}

// LowStockProducts returns active products at or below their reorder point.
func (s *Service) LowStockProducts() ([]LowStockProduct, error) {
	var products []model.Product
	if err := s.db.Where("is_active = ?", true).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}

	low := make([]LowStockProduct, 0)
	for _, product := range products {
		balance, err := s.store.LatestBalance(product.ID)
		if err != nil {
			return nil, err
		}
		if balance <= product.ReorderPoint {
			low = append(low, LowStockProduct{
				ProductID:       product.ID,
				SKU:             product.SKU,
				Name:            product.Name,
				CurrentStock:    balance,
				ReorderPoint:    product.ReorderPoint,
				ReorderQuantity: product.ReorderQuantity,
				Deficit:         product.ReorderPoint - balance,
			})
		}
	}
	return low, nil
}

// The critical check takes priority over the low check when thresholds overlap.
func deriveStatus(balance, reorderPoint, minStockLevel int) StockStatus {
	if balance <= minStockLevel {
		return StatusCritical
	}
	if balance <= reorderPoint {
		return StatusLow
	}
	return StatusNormal
}
