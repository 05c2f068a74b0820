// Package ledger owns the append-only stock event log. Every entry carries
// the running balance computed at insertion time and a per-product sequence
// number that defines the authoritative ordering.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"inventory-service/internal/apperr"
	"inventory-service/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store appends and reads ledger entries.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger

	// Per-product locks serialize the read-balance/compute/insert critical
	// section so concurrent transactions on one product cannot interleave.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a ledger store on the given database.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Store) productLock(productID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[productID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[productID] = lock
	}
	return lock
}

// Append records a stock-affecting event and returns the stored entry.
//
// For PURCHASE, SALE and RETURN the quantity must be positive. A SALE larger
// than the available balance is clamped to the available stock; the entry
// records the clamped quantity. For ADJUSTMENT the quantity is a signed
// delta and the entry stores its magnitude, with the balance clipped at zero.
func (s *Store) Append(productID string, kind model.TransactionType, quantity int, notes string) (*model.LedgerEntry, error) {
	if !kind.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown transaction type %q", kind))
	}
	if kind != model.TransactionAdjustment && quantity <= 0 {
		return nil, apperr.Validation("quantity must be positive")
	}

	var count int64
	if err := s.db.Model(&model.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("lookup product %s: %w", productID, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("product %s: %w", productID, apperr.ErrProductNotFound)
	}

	lock := s.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	var latest model.LedgerEntry
	balance := 0
	sequence := uint64(1)
	err := s.db.Where("product_id = ?", productID).
		Order("sequence DESC").
		First(&latest).Error
	switch {
	case err == nil:
		balance = latest.CurrentStock
		sequence = latest.Sequence + 1
	case err == gorm.ErrRecordNotFound:
		// First entry for this product.
	default:
		return nil, fmt.Errorf("read latest balance for %s: %w", productID, err)
	}

	stored := quantity
	switch kind {
	case model.TransactionPurchase, model.TransactionReturn:
		balance += quantity
	case model.TransactionSale:
		if quantity > balance {
			s.logger.Warn("Sale exceeds available stock, clamping",
				zap.String("product_id", productID),
				zap.Int("requested", quantity),
				zap.Int("available", balance))
			stored = balance
		}
		balance -= stored
	case model.TransactionAdjustment:
		balance += quantity
		if balance < 0 {
			balance = 0
		}
		if stored < 0 {
			stored = -stored
		}
	}

	entry := &model.LedgerEntry{
		ProductID:       productID,
		TransactionType: kind,
		Quantity:        stored,
		CurrentStock:    balance,
		Sequence:        sequence,
		Notes:           notes,
	}
	if err := s.db.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("append ledger entry for %s: %w", productID, err)
	}

	s.logger.Info("Ledger entry appended",
		zap.String("product_id", productID),
		zap.String("type", string(kind)),
		zap.Int("quantity", stored),
		zap.Int("balance", balance),
		zap.Uint64("sequence", sequence))

	return entry, nil
}

// LatestBalance returns the running balance of the product's most recent
// entry by sequence, or zero when no entries exist.
func (s *Store) LatestBalance(productID string) (int, error) {
	var latest model.LedgerEntry
	err := s.db.Where("product_id = ?", productID).
		Order("sequence DESC").
		First(&latest).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read latest balance for %s: %w", productID, err)
	}
	return latest.CurrentStock, nil
}

// History returns the product's entries, newest first, optionally bounded by
// a creation-time range.
func (s *Store) History(productID string, startDate, endDate *time.Time) ([]model.LedgerEntry, error) {
	var count int64
	if err := s.db.Model(&model.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("product %s: %w", productID, apperr.ErrProductNotFound)
	}

	query := s.db.Where("product_id = ?", productID).Order("sequence DESC")
	query = applyDateRange(query, startDate, endDate)

	var entries []model.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("read history for %s: %w", productID, err)
	}
	return entries, nil
}

// AllHistory returns entries across all products, newest first, optionally
// bounded by a creation-time range. Product rows are preloaded.
func (s *Store) AllHistory(startDate, endDate *time.Time) ([]model.LedgerEntry, error) {
	query := s.db.Preload("Product").Order("created_at DESC")
	query = applyDateRange(query, startDate, endDate)

	var entries []model.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return entries, nil
}

// SalesSince returns the product's SALE entries created at or after the given
// time, ascending by sequence, capped at limit entries (0 means no cap).
func (s *Store) SalesSince(productID string, since time.Time, limit int) ([]model.LedgerEntry, error) {
	query := s.db.Where("product_id = ? AND transaction_type = ?", productID, model.TransactionSale).
		Where("created_at >= ?", since).
		Order("sequence ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []model.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("read sales for %s: %w", productID, err)
	}
	return entries, nil
}

// RecentSales returns the product's newest SALE entries, newest first, capped
// at limit entries.
func (s *Store) RecentSales(productID string, limit int) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := s.db.Where("product_id = ? AND transaction_type = ?", productID, model.TransactionSale).
		Order("sequence DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("read recent sales for %s: %w", productID, err)
	}
	return entries, nil
}

func applyDateRange(query *gorm.DB, startDate, endDate *time.Time) *gorm.DB {
	if startDate != nil {
		query = query.Where("created_at >= ?", *startDate)
	}
	if endDate != nil {
		query = query.Where("created_at <= ?", *endDate)
	}
	return query
}
