package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product represents a product catalog entry together with the demand-model
// snapshot maintained by the forecast trainer.
type Product struct {
	ID          string  `json:"id" gorm:"type:varchar(36);primarykey"`
	SKU         string  `json:"sku" gorm:"type:varchar(100);unique;not null"`
	Name        string  `json:"name" gorm:"type:varchar(255);not null"`
	Description string  `json:"description" gorm:"type:text"`
	Category    string  `json:"category" gorm:"type:varchar(100);index"`
	Price       float64 `json:"price" gorm:"not null"`
	Cost        float64 `json:"cost" gorm:"default:0"`

	MinStockLevel   int `json:"min_stock_level" gorm:"default:0"`
	MaxStockLevel   int `json:"max_stock_level" gorm:"default:100"`
	ReorderPoint    int `json:"reorder_point" gorm:"default:20"`
	ReorderQuantity int `json:"reorder_quantity" gorm:"default:50"`

	IsActive bool `json:"is_active" gorm:"default:true"`

	// Model snapshot written only by the forecast trainer after a successful
	// training pass. WeightA/WeightB are the linear approximation of the last
	// external forecast; a nil WeightA means the product was never trained.
	ModelWeightA       *float64   `json:"model_weight_a" gorm:"type:decimal(10,6)"`
	ModelWeightB       float64    `json:"model_weight_b" gorm:"type:decimal(10,6);default:0"`
	ModelConfidence    float64    `json:"model_confidence" gorm:"type:decimal(5,2);default:50"`
	ModelTrainingCount int        `json:"model_training_count" gorm:"default:0"`
	ModelLastUpdated   *time.Time `json:"model_last_updated"`
	ModelSeasonality   string     `json:"model_seasonality" gorm:"type:text"`
	ModelTrendStrength float64    `json:"model_trend_strength" gorm:"type:decimal(5,2);default:0"`
	ModelVolatility    float64    `json:"model_volatility" gorm:"type:decimal(10,6);default:0"`
	ModelEwmaAlpha     float64    `json:"model_ewma_alpha" gorm:"type:decimal(5,3);default:0.3"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// HasTrainedModel reports whether the cached linear approximation is usable.
func (p *Product) HasTrainedModel() bool {
	return p.ModelWeightA != nil && p.ModelTrainingCount > 2
}
