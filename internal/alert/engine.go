// Package alert generates and manages threshold-based stock advisories.
package alert

import (
	"encoding/json"
	"fmt"

	"inventory-service/internal/apperr"
	"inventory-service/internal/ledger"
	"inventory-service/internal/model"
	"inventory-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Statistics summarizes the alert table by status and type.
type Statistics struct {
	Total        int64            `json:"total"`
	ByStatus     map[string]int64 `json:"by_status"`
	ByType       map[string]int64 `json:"by_type"`
	HighPriority int64            `json:"high_priority"`
}

// Engine scans products and manages alert lifecycles.
type Engine struct {
	db     *gorm.DB
	store  *ledger.Store
	logger *zap.Logger
}

// NewEngine creates an alert engine.
func NewEngine(db *gorm.DB, store *ledger.Store, logger *zap.Logger) *Engine {
	return &Engine{db: db, store: store, logger: logger}
}

// ScanAndGenerate evaluates every active product against its thresholds and
// returns the alerts created by this pass. An alert is only created when no
// ACTIVE alert of the same (product, type) pair exists; duplicates are
// silently skipped. A failure on one product does not stop the scan.
//
// LOW_STOCK and REORDER_NEEDED are evaluated independently and can both fire
// for the same stock condition. That duplication is kept deliberately: the
// two alerts have different consumers (status display vs purchasing), and
// merging the rules would change observable alert counts.
func (e *Engine) ScanAndGenerate() ([]model.Alert, error) {
	var products []model.Product
	if err := e.db.Where("is_active = ?", true).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}

	created := make([]model.Alert, 0)
	for _, product := range products {
		alerts, err := e.evaluateProduct(&product)
		if err != nil {
			e.logger.Error("Alert evaluation failed, continuing scan",
				zap.String("product_id", product.ID),
				zap.Error(err))
			continue
		}
		created = append(created, alerts...)
	}

	e.logger.Info("Alert scan completed",
		zap.Int("products", len(products)),
		zap.Int("created", len(created)))
	return created, nil
}

func (e *Engine) evaluateProduct(product *model.Product) ([]model.Alert, error) {
	balance, err := e.store.LatestBalance(product.ID)
	if err != nil {
		return nil, err
	}

	var created []model.Alert

	if balance <= product.MinStockLevel {
		alert, err := e.createIfAbsent(product.ID, model.AlertCriticalStock,
			fmt.Sprintf("Critical stock level for %s. Current: %d, Min: %d", product.Name, balance, product.MinStockLevel),
			10,
			map[string]interface{}{"currentStock": balance, "minStockLevel": product.MinStockLevel})
		if err != nil {
			return created, err
		}
		if alert != nil {
			created = append(created, *alert)
		}
	} else if balance <= product.ReorderPoint {
		alert, err := e.createIfAbsent(product.ID, model.AlertLowStock,
			fmt.Sprintf("Low stock level for %s. Current: %d, Reorder Point: %d", product.Name, balance, product.ReorderPoint),
			7,
			map[string]interface{}{"currentStock": balance, "reorderPoint": product.ReorderPoint})
		if err != nil {
			return created, err
		}
		if alert != nil {
			created = append(created, *alert)
		}
	}

	if balance > product.MaxStockLevel {
		alert, err := e.createIfAbsent(product.ID, model.AlertOverstock,
			fmt.Sprintf("Overstock detected for %s. Current: %d, Max: %d", product.Name, balance, product.MaxStockLevel),
			3,
			map[string]interface{}{"currentStock": balance, "maxStockLevel": product.MaxStockLevel})
		if err != nil {
			return created, err
		}
		if alert != nil {
			created = append(created, *alert)
		}
	}

	if balance <= product.ReorderPoint {
		alert, err := e.createIfAbsent(product.ID, model.AlertReorderNeeded,
			fmt.Sprintf("Reorder needed for %s. Suggested quantity: %d", product.Name, product.ReorderQuantity),
			8,
			map[string]interface{}{
				"currentStock":    balance,
				"reorderPoint":    product.ReorderPoint,
				"reorderQuantity": product.ReorderQuantity,
			})
		if err != nil {
			return created, err
		}
		if alert != nil {
			created = append(created, *alert)
		}
	}

	return created, nil
}

func (e *Engine) createIfAbsent(productID string, alertType model.AlertType, message string, priority int, metadata map[string]interface{}) (*model.Alert, error) {
	var count int64
	err := e.db.Model(&model.Alert{}).
		Where("product_id = ? AND alert_type = ? AND status = ?", productID, alertType, model.AlertActive).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, nil
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}

	alert := &model.Alert{
		ProductID: productID,
		AlertType: alertType,
		Status:    model.AlertActive,
		Message:   message,
		Priority:  priority,
		Metadata:  string(metadataJSON),
	}
	if err := e.db.Create(alert).Error; err != nil {
		return nil, fmt.Errorf("create %s alert for %s: %w", alertType, productID, err)
	}

	prometheus.AlertsCreatedCounter.WithLabelValues(string(alertType)).Inc()
	return alert, nil
}

// List returns alerts, optionally filtered by status, ordered by priority
// descending then recency descending.
func (e *Engine) List(status model.AlertStatus) ([]model.Alert, error) {
	query := e.db.Preload("Product").Order("priority DESC, created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var alerts []model.Alert
	if err := query.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

// ListByProduct returns all alerts for one product, newest first.
func (e *Engine) ListByProduct(productID string) ([]model.Alert, error) {
	var alerts []model.Alert
	err := e.db.Where("product_id = ?", productID).Order("created_at DESC").Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("list alerts for %s: %w", productID, err)
	}
	return alerts, nil
}

// Transition moves an alert to a new status. Same-state writes are idempotent
// no-ops; anything the state machine forbids returns ErrInvalidTransition.
func (e *Engine) Transition(alertID string, status model.AlertStatus) (*model.Alert, error) {
	if !status.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown alert status %q", status))
	}

	var alert model.Alert
	if err := e.db.First(&alert, "id = ?", alertID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("alert %s: %w", alertID, apperr.ErrAlertNotFound)
		}
		return nil, err
	}

	if alert.Status == status {
		return &alert, nil
	}

	if !alert.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%s -> %s: %w", alert.Status, status, apperr.ErrInvalidTransition)
	}

	alert.Status = status
	if err := e.db.Save(&alert).Error; err != nil {
		return nil, fmt.Errorf("update alert %s: %w", alertID, err)
	}

	e.logger.Info("Alert status updated",
		zap.String("alert_id", alertID),
		zap.String("status", string(status)))
	return &alert, nil
}

// Dismiss is a convenience transition to DISMISSED.
func (e *Engine) Dismiss(alertID string) (*model.Alert, error) {
	return e.Transition(alertID, model.AlertDismissed)
}

// GetStatistics counts alerts by status and type, plus active alerts with
// priority 8 or higher.
func (e *Engine) GetStatistics() (*Statistics, error) {
	var alerts []model.Alert
	if err := e.db.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}

	stats := &Statistics{
		Total:    int64(len(alerts)),
		ByStatus: map[string]int64{"active": 0, "acknowledged": 0, "resolved": 0, "dismissed": 0},
		ByType: map[string]int64{
			"lowStock":          0,
			"criticalStock":     0,
			"overstock":         0,
			"reorderNeeded":     0,
			"predictedShortage": 0,
		},
	}

	for _, alert := range alerts {
		switch alert.Status {
		case model.AlertActive:
			stats.ByStatus["active"]++
		case model.AlertAcknowledged:
			stats.ByStatus["acknowledged"]++
		case model.AlertResolved:
			stats.ByStatus["resolved"]++
		case model.AlertDismissed:
			stats.ByStatus["dismissed"]++
		}
		switch alert.AlertType {
		case model.AlertLowStock:
			stats.ByType["lowStock"]++
		case model.AlertCriticalStock:
			stats.ByType["criticalStock"]++
		case model.AlertOverstock:
			stats.ByType["overstock"]++
		case model.AlertReorderNeeded:
			stats.ByType["reorderNeeded"]++
		case model.AlertPredictedShortage:
			stats.ByType["predictedShortage"]++
		}
		if alert.Priority >= 8 && alert.Status == model.AlertActive {
			stats.HighPriority++
		}
	}

	return stats, nil
}
