// Package analytics computes read-only rollups over the ledger, catalog and
// alert tables.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"inventory-service/internal/ledger"
	"inventory-service/internal/model"
	"inventory-service/internal/stock"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dashboard is the landing-page rollup.
type Dashboard struct {
	Products struct {
		Total    int64 `json:"total"`
		Active   int64 `json:"active"`
		Inactive int64 `json:"inactive"`
	} `json:"products"`
	Alerts struct {
		Total  int64 `json:"total"`
		Active int64 `json:"active"`
	} `json:"alerts"`
	Inventory struct {
		LowStockItems int     `json:"low_stock_items"`
		TotalValue    float64 `json:"total_value"`
	} `json:"inventory"`
	Sales struct {
		Last7Days int64 `json:"last_7_days"`
	} `json:"sales"`
	LastUpdated time.Time `json:"last_updated"`
}

// SalesReport summarizes SALE entries over a period.
type SalesReport struct {
	Period struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	} `json:"period"`
	TotalSales       int     `json:"total_sales"`
	TotalQuantity    int     `json:"total_quantity"`
	TotalRevenue     float64 `json:"total_revenue"`
	AverageSaleValue float64 `json:"average_sale_value"`
}

// TopProduct is one row of the top-sellers report.
type TopProduct struct {
	Product struct {
		ID    string  `json:"id"`
		SKU   string  `json:"sku"`
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	} `json:"product"`
	TotalQuantity int     `json:"total_quantity"`
	TotalRevenue  float64 `json:"total_revenue"`
}

// SystemHealth is the derived health rollup.
type SystemHealth struct {
	Status      string    `json:"status"`
	HealthScore int       `json:"health_score"`
	Metrics     struct {
		ActiveProducts    int64 `json:"active_products"`
		ActiveAlerts      int64 `json:"active_alerts"`
		TotalPredictions  int64 `json:"total_predictions"`
		TotalTransactions int64 `json:"total_transactions"`
	} `json:"metrics"`
	Timestamp time.Time `json:"timestamp"`
}

// Aggregator computes analytics rollups.
type Aggregator struct {
	db     *gorm.DB
	store  *ledger.Store
	stocks *stock.Service
	logger *zap.Logger
}

// NewAggregator creates an analytics aggregator.
func NewAggregator(db *gorm.DB, store *ledger.Store, stocks *stock.Service, logger *zap.Logger) *Aggregator {
	return &Aggregator{db: db, store: store, stocks: stocks, logger: logger}
}

// GetDashboard assembles the landing-page rollup.
func (a *Aggregator) GetDashboard() (*Dashboard, error) {
	dashboard := &Dashboard{LastUpdated: time.Now()}

	if err := a.db.Model(&model.Product{}).Count(&dashboard.Products.Total).Error; err != nil {
		return nil, err
	}
	if err := a.db.Model(&model.Product{}).Where("is_active = ?", true).Count(&dashboard.Products.Active).Error; err != nil {
		return nil, err
	}
	dashboard.Products.Inactive = dashboard.Products.Total - dashboard.Products.Active

	if err := a.db.Model(&model.Alert{}).Count(&dashboard.Alerts.Total).Error; err != nil {
		return nil, err
	}
	if err := a.db.Model(&model.Alert{}).Where("status = ?", model.AlertActive).Count(&dashboard.Alerts.Active).Error; err != nil {
		return nil, err
	}

	low, err := a.stocks.LowStockProducts()
	if err != nil {
		return nil, err
	}
	dashboard.Inventory.LowStockItems = len(low)

	value, err := a.InventoryValue()
	if err != nil {
		return nil, err
	}
	dashboard.Inventory.TotalValue = value

	sales, err := a.recentSalesCount(7)
	if err != nil {
		return nil, err
	}
	dashboard.Sales.Last7Days = sales

	return dashboard, nil
}

// InventoryValue totals current stock at cost across the whole catalog.
func (a *Aggregator) InventoryValue() (float64, error) {
	var products []model.Product
	if err := a.db.Find(&products).Error; err != nil {
		return 0, fmt.Errorf("list products: %w", err)
	}

	total := 0.0
	for _, product := range products {
		balance, err := a.store.LatestBalance(product.ID)
		if err != nil {
			return 0, err
		}
		total += float64(balance) * product.Cost
	}
	return math.Round(total*100) / 100, nil
}

// GetSalesReport totals SALE entries over an optional date range.
func (a *Aggregator) GetSalesReport(startDate, endDate *time.Time) (*SalesReport, error) {
	query := a.db.Preload("Product").Where("transaction_type = ?", model.TransactionSale)
	if startDate != nil {
		query = query.Where("created_at >= ?", *startDate)
	}
	if endDate != nil {
		query = query.Where("created_at <= ?", *endDate)
	}

	var sales []model.LedgerEntry
	if err := query.Find(&sales).Error; err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}

	report := &SalesReport{TotalSales: len(sales)}
	report.Period.StartDate = "beginning"
	report.Period.EndDate = "now"
	if startDate != nil {
		report.Period.StartDate = startDate.Format("2006-01-02")
	}
	if endDate != nil {
		report.Period.EndDate = endDate.Format("2006-01-02")
	}

	for _, sale := range sales {
		report.TotalQuantity += sale.Quantity
		if sale.Product != nil {
			report.TotalRevenue += float64(sale.Quantity) * sale.Product.Price
		}
	}
	report.TotalRevenue = math.Round(report.TotalRevenue*100) / 100
	if len(sales) > 0 {
		report.AverageSaleValue = math.Round(report.TotalRevenue/float64(len(sales))*100) / 100
	}

	return report, nil
}

// GetTopProducts ranks products by quantity sold over the trailing 30 days.
func (a *Aggregator) GetTopProducts(limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = 10
	}
	since := time.Now().AddDate(0, 0, -30)

	var sales []model.LedgerEntry
	err := a.db.Preload("Product").
		Where("transaction_type = ? AND created_at >= ?", model.TransactionSale, since).
		Find(&sales).Error
	if err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}

	byProduct := make(map[string]*TopProduct)
	order := make([]string, 0)
	for _, sale := range sales {
		if sale.Product == nil {
			continue
		}
		entry, ok := byProduct[sale.ProductID]
		if !ok {
			entry = &TopProduct{}
			entry.Product.ID = sale.Product.ID
			entry.Product.SKU = sale.Product.SKU
			entry.Product.Name = sale.Product.Name
			entry.Product.Price = sale.Product.Price
			byProduct[sale.ProductID] = entry
			order = append(order, sale.ProductID)
		}
		entry.TotalQuantity += sale.Quantity
		entry.TotalRevenue += float64(sale.Quantity) * sale.Product.Price
	}

	top := make([]TopProduct, 0, len(byProduct))
	for _, id := range order {
		entry := byProduct[id]
		entry.TotalRevenue = math.Round(entry.TotalRevenue*100) / 100
		top = append(top, *entry)
	}
	sort.Slice(top, func(i, j int) bool { return top[i].TotalQuantity > top[j].TotalQuantity })
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

// GetSystemHealth derives a health score from the active-alert ratio.
func (a *Aggregator) GetSystemHealth() (*SystemHealth, error) {
	health := &SystemHealth{Timestamp: time.Now()}

	if err := a.db.Model(&model.Product{}).Where("is_active = ?", true).Count(&health.Metrics.ActiveProducts).Error; err != nil {
		return nil, err
	}
	if err := a.db.Model(&model.Alert{}).Where("status = ?", model.AlertActive).Count(&health.Metrics.ActiveAlerts).Error; err != nil {
		return nil, err
	}
	if err := a.db.Model(&model.Prediction{}).Count(&health.Metrics.TotalPredictions).Error; err != nil {
		return nil, err
	}
	if err := a.db.Model(&model.LedgerEntry{}).Count(&health.Metrics.TotalTransactions).Error; err != nil {
		return nil, err
	}

	health.HealthScore = healthScore(health.Metrics.ActiveAlerts, health.Metrics.ActiveProducts)
	switch {
	case health.HealthScore >= 80:
		health.Status = "HEALTHY"
	case health.HealthScore >= 60:
		health.Status = "WARNING"
	default:
		health.Status = "CRITICAL"
	}
	return health, nil
}

func (a *Aggregator) recentSalesCount(days int) (int64, error) {
	since := time.Now().AddDate(0, 0, -days)
	var count int64
	err := a.db.Model(&model.LedgerEntry{}).
		Where("transaction_type = ? AND created_at >= ?", model.TransactionSale, since).
		Count(&count).Error
	return count, err
}

func healthScore(activeAlerts, totalProducts int64) int {
	if totalProducts == 0 {
		return 100
	}
	ratio := float64(activeAlerts) / float64(totalProducts)
	switch {
	case ratio > 0.5:
		return 40
	case ratio > 0.3:
		return 60
	case ratio > 0.1:
		return 80
	}
	return 100
}
