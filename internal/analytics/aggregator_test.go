package analytics

import (
	"testing"
	"time"

	"inventory-service/internal/ledger"
	"inventory-service/internal/model"
	"inventory-service/internal/stock"
	"inventory-service/pkg/config"
	"inventory-service/prometheus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	cfg, _ := config.Load("analytics-test")
	prometheus.InitMetrics(cfg)
	m.Run()
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Product{}, &model.LedgerEntry{}, &model.Alert{}, &model.Prediction{}))
	return db
}

func newAggregator(t *testing.T, db *gorm.DB) (*Aggregator, *ledger.Store) {
	t.Helper()
	store := ledger.NewStore(db, zap.NewNop())
	stocks := stock.NewService(db, store, nil, zap.NewNop())
	return NewAggregator(db, store, stocks, zap.NewNop()), store
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, price, cost float64) *model.Product {
	t.Helper()
	product := &model.Product{
		SKU:             sku,
		Name:            "Widget " + sku,
		Price:           price,
		Cost:            cost,
		MinStockLevel:   5,
		ReorderPoint:    10,
		MaxStockLevel:   500,
		ReorderQuantity: 25,
		IsActive:        true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func TestInventoryValue(t *testing.T) {
	db := setupTestDB(t)
	aggregator, store := newAggregator(t, db)
	cheap := seedProduct(t, db, "SKU-1", 10, 4)
	pricey := seedProduct(t, db, "SKU-2", 100, 62.5)

	_, err := store.Append(cheap.ID, model.TransactionPurchase, 20, "")
	require.NoError(t, err)
	_, err = store.Append(pricey.ID, model.TransactionPurchase, 3, "")
	require.NoError(t, err)

	value, err := aggregator.InventoryValue()
	require.NoError(t, err)
	// 20*4 + 3*62.5
	assert.Equal(t, 267.5, value)
}

func TestGetDashboard(t *testing.T) {
	db := setupTestDB(t)
	aggregator, store := newAggregator(t, db)
	product := seedProduct(t, db, "SKU-1", 10, 4)
	inactive := seedProduct(t, db, "SKU-2", 10, 4)
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)

	_, err := store.Append(product.ID, model.TransactionPurchase, 50, "")
	require.NoError(t, err)
	_, err = store.Append(product.ID, model.TransactionSale, 8, "")
	require.NoError(t, err)

	require.NoError(t, db.Create(&model.Alert{
		ProductID: product.ID,
		AlertType: model.AlertLowStock,
		Status:    model.AlertActive,
		Message:   "low",
		Priority:  7,
	}).Error)
	require.NoError(t, db.Create(&model.Alert{
		ProductID: product.ID,
		AlertType: model.AlertOverstock,
		Status:    model.AlertDismissed,
		Message:   "over",
		Priority:  3,
	}).Error)

	dashboard, err := aggregator.GetDashboard()
	require.NoError(t, err)
	assert.Equal(t, int64(2), dashboard.Products.Total)
	assert.Equal(t, int64(1), dashboard.Products.Active)
	assert.Equal(t, int64(1), dashboard.Products.Inactive)
	assert.Equal(t, int64(2), dashboard.Alerts.Total)
	assert.Equal(t, int64(1), dashboard.Alerts.Active)
	assert.Equal(t, 0, dashboard.Inventory.LowStockItems)
	assert.Equal(t, 168.0, dashboard.Inventory.TotalValue)
	assert.Equal(t, int64(1), dashboard.Sales.Last7Days)
}

func TestGetSalesReport(t *testing.T) {
	db := setupTestDB(t)
	aggregator, store := newAggregator(t, db)
	product := seedProduct(t, db, "SKU-1", 12.5, 4)

	_, err := store.Append(product.ID, model.TransactionPurchase, 50, "")
	require.NoError(t, err)
	_, err = store.Append(product.ID, model.TransactionSale, 4, "")
	require.NoError(t, err)
	_, err = store.Append(product.ID, model.TransactionSale, 6, "")
	require.NoError(t, err)

	report, err := aggregator.GetSalesReport(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "beginning", report.Period.StartDate)
	assert.Equal(t, "now", report.Period.EndDate)
	assert.Equal(t, 2, report.TotalSales)
	assert.Equal(t, 10, report.TotalQuantity)
	assert.Equal(t, 125.0, report.TotalRevenue)
	assert.Equal(t, 62.5, report.AverageSaleValue)

	// A window in the past excludes today's sales.
	start := time.Now().AddDate(0, 0, -14)
	end := time.Now().AddDate(0, 0, -7)
	report, err = aggregator.GetSalesReport(&start, &end)
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalSales)
	assert.Equal(t, 0.0, report.AverageSaleValue)
}

func TestGetTopProducts(t *testing.T) {
	db := setupTestDB(t)
	aggregator, store := newAggregator(t, db)
	runner := seedProduct(t, db, "SKU-1", 10, 4)
	leader := seedProduct(t, db, "SKU-2", 20, 8)

	for _, p := range []*model.Product{runner, leader} {
		_, err := store.Append(p.ID, model.TransactionPurchase, 50, "")
		require.NoError(t, err)
	}
	_, err := store.Append(runner.ID, model.TransactionSale, 5, "")
	require.NoError(t, err)
	_, err = store.Append(leader.ID, model.TransactionSale, 12, "")
	require.NoError(t, err)

	top, err := aggregator.GetTopProducts(10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, leader.ID, top[0].Product.ID)
	assert.Equal(t, 12, top[0].TotalQuantity)
	assert.Equal(t, 240.0, top[0].TotalRevenue)
	assert.Equal(t, runner.ID, top[1].Product.ID)

	top, err = aggregator.GetTopProducts(1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, leader.ID, top[0].Product.ID)
}

func TestGetSystemHealth(t *testing.T) {
	db := setupTestDB(t)
	aggregator, _ := newAggregator(t, db)

	// No products at all scores a perfect 100.
	health, err := aggregator.GetSystemHealth()
	require.NoError(t, err)
	assert.Equal(t, 100, health.HealthScore)
	assert.Equal(t, "HEALTHY", health.Status)

	for i := 0; i < 4; i++ {
		seedProduct(t, db, "SKU-"+string(rune('1'+i)), 10, 4)
	}
	var products []model.Product
	require.NoError(t, db.Find(&products).Error)

	// 3 active alerts across 4 products: ratio 0.75 is critical territory.
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&model.Alert{
			ProductID: products[i].ID,
			AlertType: model.AlertCriticalStock,
			Status:    model.AlertActive,
			Message:   "critical",
			Priority:  10,
		}).Error)
	}

	health, err = aggregator.GetSystemHealth()
	require.NoError(t, err)
	assert.Equal(t, 40, health.HealthScore)
	assert.Equal(t, "CRITICAL", health.Status)
	assert.Equal(t, int64(4), health.Metrics.ActiveProducts)
	assert.Equal(t, int64(3), health.Metrics.ActiveAlerts)
}

func TestHealthScoreBands(t *testing.T) {
	assert.Equal(t, 100, healthScore(0, 10))
	assert.Equal(t, 100, healthScore(1, 10))
	assert.Equal(t, 80, healthScore(2, 10))
	assert.Equal(t, 60, healthScore(4, 10))
	assert.Equal(t, 40, healthScore(6, 10))
}
