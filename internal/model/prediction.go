package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Forecast method tags stored in prediction metadata. Each tier of the
// selector persists exactly one of these so a stored prediction always
// identifies how it was produced.
const (
	MethodExternalModel      = "external-model"
	MethodStoredLinear       = "stored-linear-fallback"
	MethodStandardRegression = "standard-regression"
	MethodBasicAverage       = "basic-average"
)

// Prediction is an immutable forecast snapshot. History is retained rather
// than upserted; the newest row by creation time is the product's "latest".
type Prediction struct {
	ID              string    `json:"id" gorm:"type:varchar(36);primarykey"`
	ProductID       string    `json:"product_id" gorm:"type:varchar(36);index;not null"`
	Product         *Product  `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	PredictedDemand int       `json:"predicted_demand" gorm:"not null"`
	Confidence      float64   `json:"confidence" gorm:"not null"`
	PredictionDate  time.Time `json:"prediction_date" gorm:"not null"`
	DaysAhead       int       `json:"days_ahead" gorm:"default:7"`
	Metadata        string    `json:"metadata" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at" gorm:"index"`
}

func (p *Prediction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
