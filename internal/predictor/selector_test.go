package predictor

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"inventory-service/internal/apperr"
	"inventory-service/internal/ledger"
	"inventory-service/internal/model"
	"inventory-service/pkg/config"
	"inventory-service/pkg/forecast"
	"inventory-service/prometheus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	cfg, _ := config.Load("predictor-test")
	prometheus.InitMetrics(cfg)
	m.Run()
}

type fakeClient struct {
	available bool
	response  *forecast.PredictionResponse
	err       error
	requests  []*forecast.TimeSeriesRequest
}

func (f *fakeClient) Available() bool { return f.available }

func (f *fakeClient) Predict(data *forecast.TimeSeriesRequest) (*forecast.PredictionResponse, error) {
	f.requests = append(f.requests, data)
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Product{}, &model.LedgerEntry{}, &model.Alert{}, &model.Prediction{}))
	return db
}

func newSelector(t *testing.T, db *gorm.DB, client ForecastClient) (*Selector, *ledger.Store) {
	t.Helper()
	store := ledger.NewStore(db, zap.NewNop())
	return NewSelector(db, store, client, zap.NewNop()), store
}

func seedProduct(t *testing.T, db *gorm.DB, sku string) *model.Product {
	t.Helper()
	product := &model.Product{
		SKU:             sku,
		Name:            "Widget " + sku,
		Price:           19.99,
		MinStockLevel:   5,
		ReorderPoint:    10,
		MaxStockLevel:   500,
		ReorderQuantity: 25,
		IsActive:        true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

// recordSale appends a SALE and backdates its timestamp so day-bucketed
// aggregation sees the intended calendar day.
func recordSale(t *testing.T, db *gorm.DB, store *ledger.Store, productID string, quantity, daysAgo int) {
	t.Helper()
	entry, err := store.Append(productID, model.TransactionSale, quantity, "")
	require.NoError(t, err)
	when := time.Now().AddDate(0, 0, -daysAgo)
	require.NoError(t, db.Model(&model.LedgerEntry{}).
		Where("id = ?", entry.ID).
		Update("created_at", when).Error)
}

func predictionMethod(t *testing.T, prediction *model.Prediction) string {
	t.Helper()
	var metadata map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(prediction.Metadata), &metadata))
	method, _ := metadata["method"].(string)
	return method
}

func TestPredictUnknownProduct(t *testing.T) {
	db := setupTestDB(t)
	selector, _ := newSelector(t, db, &fakeClient{})

	_, err := selector.Predict("missing", 7)
	assert.True(t, errors.Is(err, apperr.ErrProductNotFound))
}

func TestPredictBasicAverageWithoutHistory(t *testing.T) {
	db := setupTestDB(t)
	selector, _ := newSelector(t, db, &fakeClient{available: false})
	product := seedProduct(t, db, "SKU-1")

	prediction, err := selector.Predict(product.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 10, prediction.PredictedDemand)
	assert.Equal(t, 30.0, prediction.Confidence)
	assert.Equal(t, model.MethodBasicAverage, predictionMethod(t, prediction))
	assert.Equal(t, 7, prediction.DaysAhead)
}

func TestPredictBasicAverageOfRecentSales(t *testing.T) {
	db := setupTestDB(t)
	selector, store := newSelector(t, db, &fakeClient{available: false})
	product := seedProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 100, "")
	require.NoError(t, err)
	// Two sales on the same day: one aggregated day is below the regression
	// minimum, so the average of the raw sales is used.
	recordSale(t, db, store, product.ID, 4, 1)
	recordSale(t, db, store, product.ID, 6, 1)

	prediction, err := selector.Predict(product.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 5, prediction.PredictedDemand)
	assert.Equal(t, 30.0, prediction.Confidence)
	assert.Equal(t, model.MethodBasicAverage, predictionMethod(t, prediction))
}

func TestPredictStandardRegression(t *testing.T) {
	db := setupTestDB(t)
	selector, store := newSelector(t, db, &fakeClient{available: false})
	product := seedProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 100, "")
	require.NoError(t, err)
	// Perfectly linear daily totals 2, 4, 6 over three days.
	recordSale(t, db, store, product.ID, 2, 3)
	recordSale(t, db, store, product.ID, 4, 2)
	recordSale(t, db, store, product.ID, 6, 1)

	prediction, err := selector.Predict(product.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.MethodStandardRegression, predictionMethod(t, prediction))
	assert.Equal(t, 8, prediction.PredictedDemand)
	assert.InDelta(t, 100.0, prediction.Confidence, 0.01)
}

func TestPredictStoredLinearFallback(t *testing.T) {
	db := setupTestDB(t)
	selector, _ := newSelector(t, db, &fakeClient{available: false})
	product := seedProduct(t, db, "SKU-1")

	weightA := 2.0
	updated := time.Now()
	require.NoError(t, db.Model(product).Updates(map[string]interface{}{
		"model_weight_a":       weightA,
		"model_weight_b":       3.0,
		"model_confidence":     88.0,
		"model_training_count": 10,
		"model_last_updated":   updated,
		"model_volatility":     0.1,
	}).Error)

	prediction, err := selector.Predict(product.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.MethodStoredLinear, predictionMethod(t, prediction))
	assert.Equal(t, 17, prediction.PredictedDemand)
	assert.Equal(t, 88.0, prediction.Confidence)
}

func TestPredictExternalModel(t *testing.T) {
	db := setupTestDB(t)
	client := &fakeClient{
		available: true,
		response: &forecast.PredictionResponse{
			Predictions: []float64{12.4},
			ConfidenceIntervals: forecast.ConfidenceIntervals{
				Lower: []float64{10},
				Upper: []float64{14},
			},
			ModelType: "chronos",
			Metadata:  forecast.PredictionMetadata{Trend: "increasing"},
		},
	}
	selector, store := newSelector(t, db, client)
	product := seedProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 100, "")
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		recordSale(t, db, store, product.ID, 5+i%3, 8-i)
	}

	prediction, err := selector.Predict(product.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.MethodExternalModel, predictionMethod(t, prediction))
	assert.Equal(t, 12, prediction.PredictedDemand)
	// clamp(100 - (14-10)/12*50, 70, 95)
	assert.InDelta(t, 83.33, prediction.Confidence, 0.01)

	require.Len(t, client.requests, 1)
	assert.Equal(t, product.ID, client.requests[0].ProductID)
	assert.Len(t, client.requests[0].Quantities, 8)
}

func TestPredictExternalFailureFallsThrough(t *testing.T) {
	db := setupTestDB(t)
	client := &fakeClient{available: true, err: errors.New("connection refused")}
	selector, store := newSelector(t, db, client)
	product := seedProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 100, "")
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		recordSale(t, db, store, product.ID, 5, 8-i)
	}

	prediction, err := selector.Predict(product.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.MethodStandardRegression, predictionMethod(t, prediction))
}

func TestPredictIncompleteExternalResponseFallsThrough(t *testing.T) {
	db := setupTestDB(t)
	// Non-empty prediction series but no confidence intervals: the external
	// tier must reject the response and fall through, not panic.
	client := &fakeClient{
		available: true,
		response:  &forecast.PredictionResponse{Predictions: []float64{12.0}},
	}
	selector, store := newSelector(t, db, client)
	product := seedProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 100, "")
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		recordSale(t, db, store, product.ID, 5, 8-i)
	}

	prediction, err := selector.Predict(product.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.MethodStandardRegression, predictionMethod(t, prediction))
	require.Len(t, client.requests, 1)
}

func TestRetrainIncompleteResponse(t *testing.T) {
	db := setupTestDB(t)
	client := &fakeClient{available: true, response: &forecast.PredictionResponse{}}
	selector, store := newSelector(t, db, client)
	product := seedProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 100, "")
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		recordSale(t, db, store, product.ID, 5, 7-i)
	}

	err = selector.Retrain(product.ID)
	assert.True(t, errors.Is(err, apperr.ErrForecastUnavailable))

	var untouched model.Product
	require.NoError(t, db.First(&untouched, "id = ?", product.ID).Error)
	assert.False(t, untouched.HasTrainedModel())
}

func TestPredictTooFewSalesForExternal(t *testing.T) {
	db := setupTestDB(t)
	client := &fakeClient{available: true}
	selector, store := newSelector(t, db, client)
	product := seedProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 100, "")
	require.NoError(t, err)
	recordSale(t, db, store, product.ID, 4, 1)

	prediction, err := selector.Predict(product.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.MethodBasicAverage, predictionMethod(t, prediction))
	assert.Empty(t, client.requests, "service must not be called below the minimum history")
}

func TestRetrainStoresModelSnapshot(t *testing.T) {
	db := setupTestDB(t)
	client := &fakeClient{
		available: true,
		response: &forecast.PredictionResponse{
			Predictions: []float64{10, 11, 12, 13, 14, 15, 16},
			ConfidenceIntervals: forecast.ConfidenceIntervals{
				Lower: []float64{8, 8, 8, 8, 8, 8, 8},
				Upper: []float64{12, 12, 12, 12, 12, 12, 12},
			},
			Metadata: forecast.PredictionMetadata{Trend: "increasing", HasSeasonality: true},
		},
	}
	selector, store := newSelector(t, db, client)
	product := seedProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 100, "")
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		recordSale(t, db, store, product.ID, 10+i, 7-i)
	}

	require.NoError(t, selector.Retrain(product.ID))

	var trained model.Product
	require.NoError(t, db.First(&trained, "id = ?", product.ID).Error)
	require.True(t, trained.HasTrainedModel())
	assert.InDelta(t, (16.0-10.0)/7.0, *trained.ModelWeightA, 0.0001)
	assert.InDelta(t, 10.0, trained.ModelWeightB, 0.0001)
	assert.Equal(t, 7, trained.ModelTrainingCount)
	// avg width 4 over avg prediction 13
	assert.InDelta(t, 100-4.0/13.0*50, trained.ModelConfidence, 0.01)
	assert.InDelta(t, 4.0/13.0/2, trained.ModelVolatility, 0.0001)
	assert.Equal(t, 75.0, trained.ModelTrendStrength)
	assert.Contains(t, trained.ModelSeasonality, `"hasPattern":true`)
}

func TestRetrainInsufficientData(t *testing.T) {
	db := setupTestDB(t)
	selector, store := newSelector(t, db, &fakeClient{available: true})
	product := seedProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 100, "")
	require.NoError(t, err)
	recordSale(t, db, store, product.ID, 5, 1)

	err = selector.Retrain(product.ID)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientData))

	var untouched model.Product
	require.NoError(t, db.First(&untouched, "id = ?", product.ID).Error)
	assert.False(t, untouched.HasTrainedModel())
}

func TestTrainAllTalliesOutcomes(t *testing.T) {
	db := setupTestDB(t)
	client := &fakeClient{
		available: true,
		response: &forecast.PredictionResponse{
			Predictions: []float64{5, 5, 5, 5, 5, 5, 5},
			ConfidenceIntervals: forecast.ConfidenceIntervals{
				Lower: []float64{4, 4, 4, 4, 4, 4, 4},
				Upper: []float64{6, 6, 6, 6, 6, 6, 6},
			},
		},
	}
	selector, store := newSelector(t, db, client)
	trainable := seedProduct(t, db, "SKU-1")
	sparse := seedProduct(t, db, "SKU-2")

	_, err := store.Append(trainable.ID, model.TransactionPurchase, 100, "")
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		recordSale(t, db, store, trainable.ID, 5, 7-i)
	}

	result, err := selector.TrainAll()
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Trained)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Details, 2)

	for _, detail := range result.Details {
		switch detail.ProductID {
		case trainable.ID:
			assert.Equal(t, "trained", detail.Status)
		case sparse.ID:
			assert.Equal(t, "skipped", detail.Status)
			assert.NotEmpty(t, detail.Reason)
		}
	}
}

func TestLatestReturnsNewestPerProduct(t *testing.T) {
	db := setupTestDB(t)
	selector, _ := newSelector(t, db, &fakeClient{available: false})
	product := seedProduct(t, db, "SKU-1")
	seedProduct(t, db, "SKU-2")

	first, err := selector.Predict(product.ID, 7)
	require.NoError(t, err)
	second, err := selector.Predict(product.ID, 14)
	require.NoError(t, err)
	_ = first

	latest, err := selector.Latest()
	require.NoError(t, err)
	require.Len(t, latest, 1, "products without predictions are skipped")
	assert.Equal(t, product.ID, latest[0].ProductID)
	assert.Equal(t, second.ID, latest[0].ID)
}

func TestGetModelInfo(t *testing.T) {
	db := setupTestDB(t)
	selector, _ := newSelector(t, db, &fakeClient{})
	product := seedProduct(t, db, "SKU-1")

	info, err := selector.GetModelInfo(product.ID)
	require.NoError(t, err)
	assert.False(t, info.HasModel)
	assert.NotEmpty(t, info.Message)

	require.NoError(t, db.Model(product).Updates(map[string]interface{}{
		"model_weight_a":       0.5,
		"model_weight_b":       4.0,
		"model_confidence":     86.0,
		"model_training_count": 32,
	}).Error)

	info, err = selector.GetModelInfo(product.ID)
	require.NoError(t, err)
	require.True(t, info.HasModel)
	assert.Equal(t, "High", info.Stats["confidenceLevel"])
	assert.Equal(t, "Excellent", info.Stats["dataQuality"])
	assert.Equal(t, "Reliable", info.Stats["reliability"])
}

func TestAnalyzeTrends(t *testing.T) {
	db := setupTestDB(t)
	selector, store := newSelector(t, db, &fakeClient{available: false})
	product := seedProduct(t, db, "SKU-1")

	_, err := store.Append(product.ID, model.TransactionPurchase, 200, "")
	require.NoError(t, err)
	// Older days sell 2 a day, recent week sells 10 a day.
	for day := 14; day > 7; day-- {
		recordSale(t, db, store, product.ID, 2, day)
	}
	for day := 7; day > 0; day-- {
		recordSale(t, db, store, product.ID, 10, day)
	}

	trends, err := selector.AnalyzeTrends()
	require.NoError(t, err)
	require.Len(t, trends, 1)
	assert.Equal(t, "INCREASING", trends[0].Trend)
	assert.Equal(t, 10.0, trends[0].RecentAverage)
	assert.Equal(t, 2.0, trends[0].PreviousAverage)
	assert.Equal(t, 400.0, trends[0].ChangePercent)
}
