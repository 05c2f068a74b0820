package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AlertType classifies a stock advisory.
type AlertType string

const (
	AlertLowStock          AlertType = "LOW_STOCK"
	AlertCriticalStock     AlertType = "CRITICAL_STOCK"
	AlertOverstock         AlertType = "OVERSTOCK"
	AlertReorderNeeded     AlertType = "REORDER_NEEDED"
	AlertPredictedShortage AlertType = "PREDICTED_SHORTAGE"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertActive       AlertStatus = "ACTIVE"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertResolved     AlertStatus = "RESOLVED"
	AlertDismissed    AlertStatus = "DISMISSED"
)

// Valid reports whether s is one of the known alert statuses.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertActive, AlertAcknowledged, AlertResolved, AlertDismissed:
		return true
	}
	return false
}

// CanTransitionTo enforces the alert state machine. ACTIVE may move to any
// non-active state, ACKNOWLEDGED may still be resolved or dismissed, and the
// terminal states accept only an idempotent same-state overwrite.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case AlertActive:
		return next == AlertAcknowledged || next == AlertResolved || next == AlertDismissed
	case AlertAcknowledged:
		return next == AlertResolved || next == AlertDismissed
	}
	return false
}

// Alert is a derived stock advisory. Alerts are never physically deleted;
// retirement happens through status transitions only.
type Alert struct {
	ID        string      `json:"id" gorm:"type:varchar(36);primarykey"`
	ProductID string      `json:"product_id" gorm:"type:varchar(36);index;not null"`
	Product   *Product    `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	AlertType AlertType   `json:"alert_type" gorm:"type:varchar(30);not null;index"`
	Status    AlertStatus `json:"status" gorm:"type:varchar(20);default:ACTIVE;index"`
	Message   string      `json:"message" gorm:"type:text;not null"`
	Priority  int         `json:"priority" gorm:"default:5"`
	Metadata  string      `json:"metadata" gorm:"type:text"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = AlertActive
	}
	return nil
}
