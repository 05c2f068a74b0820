package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"inventory-service/internal/apperr"
	"inventory-service/internal/model"
	"inventory-service/pkg/config"
	"inventory-service/prometheus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	cfg, _ := config.Load("ledger-test")
	prometheus.InitMetrics(cfg)
	m.Run()
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid cross-test collisions.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Product{}, &model.LedgerEntry{}, &model.Alert{}, &model.Prediction{}))
	return db
}

func createProduct(t *testing.T, db *gorm.DB, sku string) *model.Product {
	t.Helper()
	product := &model.Product{
		SKU:             sku,
		Name:            "Widget " + sku,
		Price:           9.99,
		Cost:            4.5,
		MinStockLevel:   5,
		MaxStockLevel:   50,
		ReorderPoint:    10,
		ReorderQuantity: 25,
		IsActive:        true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func TestAppendComputesRunningBalance(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zap.NewNop())
	product := createProduct(t, db, "SKU-1")

	steps := []struct {
		kind     model.TransactionType
		quantity int
		balance  int
	}{
		{model.TransactionPurchase, 30, 30},
		{model.TransactionSale, 12, 18},
		{model.TransactionReturn, 2, 20},
		{model.TransactionAdjustment, -5, 15},
		{model.TransactionSale, 15, 0},
	}

	for _, step := range steps {
		entry, err := store.Append(product.ID, step.kind, step.quantity, "")
		require.NoError(t, err)
		assert.Equal(t, step.balance, entry.CurrentStock, "after %s %d", step.kind, step.quantity)
	}

	// Replaying the stored kind/quantity sequence must reproduce every balance.
	entries, err := store.History(product.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, len(steps))

	balance := 0
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		switch entry.TransactionType {
		case model.TransactionPurchase, model.TransactionReturn:
			balance += entry.Quantity
		case model.TransactionSale:
			balance -= entry.Quantity
		case model.TransactionAdjustment:
			// Stored quantity is the delta magnitude; recover the sign from
			// the balance movement.
			if entry.CurrentStock >= balance {
				balance += entry.Quantity
			} else {
				balance -= entry.Quantity
			}
			if balance < 0 {
				balance = 0
			}
		}
		assert.Equal(t, balance, entry.CurrentStock)
	}
}

func TestAppendClampsOverdraftSale(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zap.NewNop())
	product := createProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 10, "")
	require.NoError(t, err)

	entry, err := store.Append(product.ID, model.TransactionSale, 25, "")
	require.NoError(t, err)
	assert.Equal(t, 10, entry.Quantity, "sale quantity clamped to available stock")
	assert.Equal(t, 0, entry.CurrentStock)
}

func TestAppendAdjustmentClipsAtZero(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zap.NewNop())
	product := createProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 5, "")
	require.NoError(t, err)

	entry, err := store.Append(product.ID, model.TransactionAdjustment, -20, "shrinkage")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.CurrentStock)
	assert.Equal(t, 20, entry.Quantity, "magnitude stored")
}

func TestAppendValidation(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zap.NewNop())
	product := createProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionSale, 0, "")
	assert.True(t, apperr.IsValidation(err))

	_, err = store.Append(product.ID, "GIFT", 5, "")
	assert.True(t, apperr.IsValidation(err))

	_, err = store.Append("no-such-product", model.TransactionPurchase, 5, "")
	assert.True(t, errors.Is(err, apperr.ErrProductNotFound))
}

func TestLatestBalanceEmptyLedger(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zap.NewNop())
	product := createProduct(t, db, "SKU-1")

	balance, err := store.LatestBalance(product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestLatestBalanceUsesSequenceNotTimestamp(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zap.NewNop())
	product := createProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 10, "")
	require.NoError(t, err)
	latest, err := store.Append(product.ID, model.TransactionSale, 4, "")
	require.NoError(t, err)

	// Backfill an entry with a future timestamp but an older sequence; the
	// authoritative balance must still come from the highest sequence.
	backfill := &model.LedgerEntry{
		ProductID:       product.ID,
		TransactionType: model.TransactionPurchase,
		Quantity:        100,
		CurrentStock:    100,
		Sequence:        1,
		CreatedAt:       time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(backfill).Error)

	balance, err := store.LatestBalance(product.ID)
	require.NoError(t, err)
	assert.Equal(t, latest.CurrentStock, balance)
}

func TestConcurrentAppendsKeepBalanceConsistent(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zap.NewNop())
	product := createProduct(t, db, "SKU-1")

	const writers = 8
	const perWriter = 5

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				_, err := store.Append(product.ID, model.TransactionPurchase, 1, "")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	balance, err := store.LatestBalance(product.ID)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, balance)

	entries, err := store.History(product.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, writers*perWriter)
	// Sequences must be a gapless descending run.
	for i, entry := range entries {
		assert.Equal(t, uint64(writers*perWriter-i), entry.Sequence)
	}
}

func TestHistoryDateRange(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zap.NewNop())
	product := createProduct(t, db, "SKU-1")

	old := &model.LedgerEntry{
		ProductID:       product.ID,
		TransactionType: model.TransactionPurchase,
		Quantity:        3,
		CurrentStock:    3,
		Sequence:        1,
		CreatedAt:       time.Now().AddDate(0, 0, -30),
	}
	require.NoError(t, db.Create(old).Error)
	_, err := store.Append(product.ID, model.TransactionPurchase, 7, "")
	require.NoError(t, err)

	cutoff := time.Now().AddDate(0, 0, -7)
	entries, err := store.History(product.ID, &cutoff, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 7, entries[0].Quantity)

	_, err = store.History("missing", nil, nil)
	assert.True(t, errors.Is(err, apperr.ErrProductNotFound))
}
