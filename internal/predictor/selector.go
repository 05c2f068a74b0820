// Package predictor produces demand forecasts through a three-tier strategy:
// a live call to the external forecasting service, the product's cached
// linear approximation, and a basic statistical fallback. The lowest tier
// always succeeds, so Predict returns a prediction even when everything
// upstream is down.
package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"inventory-service/internal/apperr"
	"inventory-service/internal/ledger"
	"inventory-service/internal/model"
	"inventory-service/pkg/forecast"
	"inventory-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// Minimum SALE entries before the external service is consulted.
	minExternalPoints = 7
	// Maximum SALE entries submitted to the external service per forecast.
	maxForecastPoints = 90
	// Maximum SALE entries consumed by a training pass.
	maxTrainingPoints = 365
	// Aggregated daily points required for the regression fallback.
	minRegressionDays = 3
)

// ForecastClient is the subset of the forecasting service client the
// selector depends on. The Available probe gates tier-1 attempts.
type ForecastClient interface {
	forecast.Prober
	Predict(data *forecast.TimeSeriesRequest) (*forecast.PredictionResponse, error)
}

// TrainResult summarizes one TrainAll pass.
type TrainResult struct {
	Total   int                  `json:"total"`
	Trained int                  `json:"trained"`
	Skipped int                  `json:"skipped"`
	Failed  int                  `json:"failed"`
	Details []TrainProductDetail `json:"details"`
}

// TrainProductDetail is the per-product outcome of a training pass.
type TrainProductDetail struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// ProductTrend is one row of the trend analysis report.
type ProductTrend struct {
	ProductID       string  `json:"product_id"`
	SKU             string  `json:"sku"`
	Name            string  `json:"name"`
	Trend           string  `json:"trend"`
	RecentAverage   float64 `json:"recent_average"`
	PreviousAverage float64 `json:"previous_average"`
	ChangePercent   float64 `json:"change_percent"`
}

// Selector chooses a forecasting strategy and persists its result.
type Selector struct {
	db     *gorm.DB
	store  *ledger.Store
	client ForecastClient
	logger *zap.Logger
	now    func() time.Time
}

// NewSelector creates a forecast selector.
func NewSelector(db *gorm.DB, store *ledger.Store, client ForecastClient, logger *zap.Logger) *Selector {
	return &Selector{db: db, store: store, client: client, logger: logger, now: time.Now}
}

// Predict produces and persists a demand prediction for the product,
// attempting the external model first, then the cached linear approximation,
// then the statistical fallback. Tier failures never abort the call.
func (s *Selector) Predict(productID string, daysAhead int) (*model.Prediction, error) {
	if daysAhead <= 0 {
		daysAhead = 7
	}

	var product model.Product
	if err := s.db.First(&product, "id = ?", productID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("product %s: %w", productID, apperr.ErrProductNotFound)
		}
		return nil, err
	}

	if s.client != nil && s.client.Available() {
		prediction, err := s.predictExternal(&product, daysAhead)
		if err == nil {
			return prediction, nil
		}
		s.logger.Warn("External forecast failed, falling back",
			zap.String("product_id", productID),
			zap.Error(err))
	}

	if product.HasTrainedModel() {
		return s.predictStoredLinear(&product, daysAhead)
	}

	return s.predictStatistical(&product, daysAhead)
}

// predictExternal is tier 1: submit recent sales to the forecasting service.
func (s *Selector) predictExternal(product *model.Product, daysAhead int) (*model.Prediction, error) {
	sales, err := s.store.RecentSales(product.ID, maxForecastPoints)
	if err != nil {
		return nil, err
	}
	if len(sales) < minExternalPoints {
		return nil, fmt.Errorf("%d sale entries: %w", len(sales), apperr.ErrInsufficientData)
	}

	// RecentSales is newest-first; the service expects ascending time.
	sort.Slice(sales, func(i, j int) bool { return sales[i].Sequence < sales[j].Sequence })

	request := &forecast.TimeSeriesRequest{
		ProductID: product.ID,
		DaysAhead: daysAhead,
	}
	for _, sale := range sales {
		request.Dates = append(request.Dates, sale.CreatedAt.Format(time.RFC3339))
		request.Quantities = append(request.Quantities, sale.Quantity)
	}

	start := s.now()
	response, err := s.client.Predict(request)
	prometheus.ForecastServiceDuration.Observe(s.now().Sub(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrForecastUnavailable, err)
	}
	if len(response.Predictions) == 0 ||
		len(response.ConfidenceIntervals.Lower) == 0 ||
		len(response.ConfidenceIntervals.Upper) == 0 {
		return nil, fmt.Errorf("%w: incomplete forecast response", apperr.ErrForecastUnavailable)
	}

	predictedDemand := int(math.Max(0, math.Round(response.Predictions[0])))

	lowerBound := math.Round(response.ConfidenceIntervals.Lower[0])
	upperBound := math.Round(response.ConfidenceIntervals.Upper[0])
	confidence := 70.0
	if predictedDemand > 0 {
		confidence = clamp(100-(upperBound-lowerBound)/float64(predictedDemand)*50, 70, 95)
	}

	predictionDate := s.now().AddDate(0, 0, daysAhead)
	if len(response.PredictionDates) > 0 {
		if parsed, perr := time.Parse(time.RFC3339, response.PredictionDates[0]); perr == nil {
			predictionDate = parsed
		} else if parsed, perr := time.Parse("2006-01-02", response.PredictionDates[0]); perr == nil {
			predictionDate = parsed
		}
	}

	metadata := map[string]interface{}{
		"method":          model.MethodExternalModel,
		"modelType":       response.ModelType,
		"predictions":     response.Predictions,
		"predictionDates": response.PredictionDates,
		"lowerBound":      lowerBound,
		"upperBound":      upperBound,
		"confidenceRange": response.Metadata.ConfidenceRange,
		"trend":           response.Metadata.Trend,
		"historicalMean":  response.Metadata.HistoricalMean,
		"predictedMean":   response.Metadata.PredictedMean,
		"hasSeasonality":  response.Metadata.HasSeasonality,
		"forecastHorizon": response.Metadata.ForecastHorizon,
		"contextLength":   response.Metadata.ContextLength,
	}

	return s.persist(product.ID, predictedDemand, confidence, predictionDate, daysAhead, model.MethodExternalModel, metadata)
}

// predictStoredLinear is tier 2: evaluate the cached linear approximation.
func (s *Selector) predictStoredLinear(product *model.Product, daysAhead int) (*model.Prediction, error) {
	weightA := *product.ModelWeightA
	predictedValue := weightA*float64(daysAhead) + product.ModelWeightB
	predictedDemand := int(math.Max(0, math.Round(predictedValue)))

	stdDev := product.ModelVolatility * predictedValue
	lowerBound := math.Max(0, math.Round(predictedValue-1.96*stdDev))
	upperBound := math.Round(predictedValue + 1.96*stdDev)

	predictionDate := s.now().AddDate(0, 0, daysAhead)

	// The weekly factor only labels the day for display; it does not adjust
	// the predicted demand.
	seasonalFactor := weeklyFactor(product.ModelSeasonality, predictionDate.Weekday())
	seasonalImpact := "Normal Day"
	if seasonalFactor > 1.1 {
		seasonalImpact = "Peak Day"
	} else if seasonalFactor < 0.9 {
		seasonalImpact = "Low Day"
	}

	trend := "stable"
	if weightA > 0.01 {
		trend = "increasing"
	} else if weightA < -0.01 {
		trend = "decreasing"
	}

	metadata := map[string]interface{}{
		"method":             model.MethodStoredLinear,
		"note":               "forecast service unavailable, using cached model",
		"trendEquation":      fmt.Sprintf("y = %.4fx + %.2f", weightA, product.ModelWeightB),
		"trend":              trend,
		"trendStrength":      product.ModelTrendStrength,
		"volatility":         product.ModelVolatility,
		"seasonalAdjustment": seasonalFactor,
		"seasonalImpact":     seasonalImpact,
		"lowerBound":         lowerBound,
		"upperBound":         upperBound,
		"trainingDataPoints": product.ModelTrainingCount,
		"lastModelUpdate":    product.ModelLastUpdated,
	}

	confidence := clamp(product.ModelConfidence, 0, 100)
	return s.persist(product.ID, predictedDemand, confidence, predictionDate, daysAhead, model.MethodStoredLinear, metadata)
}

// predictStatistical is tier 3: regression over daily aggregates when enough
// days exist, otherwise the mean of the most recent raw sales.
func (s *Selector) predictStatistical(product *model.Product, daysAhead int) (*model.Prediction, error) {
	daily, err := s.dailySales(product.ID, 30)
	if err != nil {
		return nil, err
	}

	predictionDate := s.now().AddDate(0, 0, daysAhead)

	if len(daily) >= minRegressionDays {
		xs := make([]float64, len(daily))
		ys := make([]float64, len(daily))
		for i, point := range daily {
			xs[i] = float64(i)
			ys[i] = float64(point.Quantity)
		}

		fit := fitLine(xs, ys)
		predictedValue := fit.predictAt(float64(len(daily)))
		predictedDemand := int(math.Max(0, math.Round(predictedValue)))
		confidence := clamp(fit.R2, 0, 100) * 100

		metadata := map[string]interface{}{
			"method":               model.MethodStandardRegression,
			"historicalDataPoints": len(daily),
			"equation":             fmt.Sprintf("y = %.4fx + %.2f", fit.Slope, fit.Intercept),
			"r2":                   fit.R2,
		}
		return s.persist(product.ID, predictedDemand, confidence, predictionDate, daysAhead, model.MethodStandardRegression, metadata)
	}

	recent, err := s.store.RecentSales(product.ID, 5)
	if err != nil {
		return nil, err
	}

	predictedDemand := 10
	if len(recent) > 0 {
		total := 0
		for _, sale := range recent {
			total += sale.Quantity
		}
		predictedDemand = int(math.Round(float64(total) / float64(len(recent))))
	}

	metadata := map[string]interface{}{
		"method":               model.MethodBasicAverage,
		"historicalDataPoints": len(recent),
	}
	return s.persist(product.ID, predictedDemand, 30, predictionDate, daysAhead, model.MethodBasicAverage, metadata)
}

func (s *Selector) persist(productID string, demand int, confidence float64, date time.Time, daysAhead int, method string, metadata map[string]interface{}) (*model.Prediction, error) {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}

	prediction := &model.Prediction{
		ProductID:       productID,
		PredictedDemand: demand,
		Confidence:      clamp(confidence, 0, 100),
		PredictionDate:  date,
		DaysAhead:       daysAhead,
		Metadata:        string(metadataJSON),
	}
	if err := s.db.Create(prediction).Error; err != nil {
		return nil, fmt.Errorf("persist prediction for %s: %w", productID, err)
	}

	prometheus.ForecastsCounter.WithLabelValues(method).Inc()
	s.logger.Info("Prediction persisted",
		zap.String("product_id", productID),
		zap.String("method", method),
		zap.Int("predicted_demand", demand),
		zap.Float64("confidence", prediction.Confidence))
	return prediction, nil
}

// Retrain refreshes the product's cached model parameters from a fresh
// external forecast. Unlike Predict, a forecasting-service failure is
// reported to the caller; insufficient history is an ErrInsufficientData
// skip the caller can distinguish from a hard failure.
func (s *Selector) Retrain(productID string) error {
	var product model.Product
	if err := s.db.First(&product, "id = ?", productID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("product %s: %w", productID, apperr.ErrProductNotFound)
		}
		return err
	}

	sales, err := s.store.RecentSales(productID, maxTrainingPoints)
	if err != nil {
		return err
	}
	if len(sales) < minExternalPoints {
		s.logger.Info("Skipping retrain, not enough sales history",
			zap.String("product_id", productID),
			zap.Int("points", len(sales)))
		return fmt.Errorf("%d sale entries, need %d: %w", len(sales), minExternalPoints, apperr.ErrInsufficientData)
	}

	sort.Slice(sales, func(i, j int) bool { return sales[i].Sequence < sales[j].Sequence })

	request := &forecast.TimeSeriesRequest{
		ProductID: productID,
		DaysAhead: 7,
	}
	for _, sale := range sales {
		request.Dates = append(request.Dates, sale.CreatedAt.Format(time.RFC3339))
		request.Quantities = append(request.Quantities, sale.Quantity)
	}

	response, err := s.client.Predict(request)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrForecastUnavailable, err)
	}
	if len(response.Predictions) == 0 {
		return fmt.Errorf("%w: empty forecast response", apperr.ErrForecastUnavailable)
	}

	predictions := response.Predictions
	slope := (predictions[len(predictions)-1] - predictions[0]) / float64(len(predictions))
	intercept := predictions[0]

	var sumPrediction, sumWidth float64
	for i, value := range predictions {
		sumPrediction += value
		if i < len(response.ConfidenceIntervals.Upper) && i < len(response.ConfidenceIntervals.Lower) {
			sumWidth += response.ConfidenceIntervals.Upper[i] - response.ConfidenceIntervals.Lower[i]
		}
	}
	avgPrediction := sumPrediction / float64(len(predictions))
	avgWidth := sumWidth / float64(len(predictions))

	confidence := 70.0
	volatility := 0.0
	if avgPrediction > 0 {
		confidence = clamp(100-avgWidth/avgPrediction*50, 70, 95)
		volatility = math.Min(1.0, avgWidth/avgPrediction/2)
	}

	trendStrength := 0.0
	switch response.Metadata.Trend {
	case "increasing":
		trendStrength = 75
	case "decreasing":
		trendStrength = -75
	}

	seasonalityJSON, err := json.Marshal(map[string]interface{}{
		"hasPattern":      response.Metadata.HasSeasonality,
		"trend":           response.Metadata.Trend,
		"historical_mean": response.Metadata.HistoricalMean,
		"predicted_mean":  response.Metadata.PredictedMean,
		"model":           response.Metadata.Model,
	})
	if err != nil {
		return err
	}

	now := s.now()
	updates := map[string]interface{}{
		"model_weight_a":       slope,
		"model_weight_b":       intercept,
		"model_confidence":     confidence,
		"model_training_count": len(sales),
		"model_last_updated":   now,
		"model_seasonality":    string(seasonalityJSON),
		"model_trend_strength": trendStrength,
		"model_volatility":     volatility,
	}
	if err := s.db.Model(&model.Product{}).Where("id = ?", productID).Updates(updates).Error; err != nil {
		return fmt.Errorf("store model snapshot for %s: %w", productID, err)
	}

	s.logger.Info("Model retrained",
		zap.String("product_id", productID),
		zap.Float64("slope", slope),
		zap.Float64("confidence", confidence),
		zap.Int("training_count", len(sales)))
	return nil
}

// BatchGenerate predicts demand for every active product with a 7-day
// horizon. Per-product errors are logged and skipped; partial results are
// returned.
func (s *Selector) BatchGenerate() ([]model.Prediction, error) {
	var products []model.Product
	if err := s.db.Where("is_active = ?", true).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}

	predictions := make([]model.Prediction, 0, len(products))
	for _, product := range products {
		prediction, err := s.Predict(product.ID, 7)
		if err != nil {
			s.logger.Error("Prediction failed, continuing batch",
				zap.String("product_id", product.ID),
				zap.Error(err))
			continue
		}
		predictions = append(predictions, *prediction)
	}
	return predictions, nil
}

// TrainAll retrains every active product and tallies trained, skipped
// (insufficient data) and failed outcomes.
func (s *Selector) TrainAll() (*TrainResult, error) {
	var products []model.Product
	if err := s.db.Where("is_active = ?", true).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}

	result := &TrainResult{Total: len(products)}
	for _, product := range products {
		detail := TrainProductDetail{ProductID: product.ID, SKU: product.SKU, Name: product.Name}
		err := s.Retrain(product.ID)
		switch {
		case err == nil:
			result.Trained++
			detail.Status = "trained"
			prometheus.RetrainOutcomeCounter.WithLabelValues("trained").Inc()
		case errors.Is(err, apperr.ErrInsufficientData):
			result.Skipped++
			detail.Status = "skipped"
			detail.Reason = err.Error()
			prometheus.RetrainOutcomeCounter.WithLabelValues("skipped").Inc()
		default:
			result.Failed++
			detail.Status = "failed"
			detail.Reason = err.Error()
			prometheus.RetrainOutcomeCounter.WithLabelValues("failed").Inc()
		}
		result.Details = append(result.Details, detail)
	}
	return result, nil
}

// List returns stored predictions, newest first, optionally filtered by
// product, capped at 100 rows.
func (s *Selector) List(productID string) ([]model.Prediction, error) {
	query := s.db.Preload("Product").Order("created_at DESC").Limit(100)
	if productID != "" {
		query = query.Where("product_id = ?", productID)
	}

	var predictions []model.Prediction
	if err := query.Find(&predictions).Error; err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return predictions, nil
}

// Latest returns the most recent prediction per active product.
func (s *Selector) Latest() ([]model.Prediction, error) {
	var products []model.Product
	if err := s.db.Where("is_active = ?", true).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}

	latest := make([]model.Prediction, 0, len(products))
	for _, product := range products {
		var prediction model.Prediction
		err := s.db.Preload("Product").
			Where("product_id = ?", product.ID).
			Order("created_at DESC").
			First(&prediction).Error
		if err == gorm.ErrRecordNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		latest = append(latest, prediction)
	}
	return latest, nil
}

// AnalyzeTrends compares each active product's recent daily sales average
// against its earlier average over a 30-day window.
func (s *Selector) AnalyzeTrends() ([]ProductTrend, error) {
	var products []model.Product
	if err := s.db.Where("is_active = ?", true).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}

	trends := make([]ProductTrend, 0)
	for _, product := range products {
		daily, err := s.dailySales(product.ID, 30)
		if err != nil {
			return nil, err
		}
		if len(daily) < 2 {
			continue
		}

		split := len(daily) - 7
		if split < 0 {
			split = 0
		}
		recentAvg := averageQuantity(daily[split:])
		previousAvg := averageQuantity(daily[:split])

		trend := "STABLE"
		if recentAvg > previousAvg {
			trend = "INCREASING"
		} else if recentAvg < previousAvg {
			trend = "DECREASING"
		}

		changePercent := 0.0
		if previousAvg != 0 {
			changePercent = math.Round((recentAvg-previousAvg)/previousAvg*10000) / 100
		}

		trends = append(trends, ProductTrend{
			ProductID:       product.ID,
			SKU:             product.SKU,
			Name:            product.Name,
			Trend:           trend,
			RecentAverage:   recentAvg,
			PreviousAverage: previousAvg,
			ChangePercent:   changePercent,
		})
	}
	return trends, nil
}

type dailyPoint struct {
	Date     string
	Quantity int
}

// dailySales aggregates the product's SALE quantities by calendar day over
// the trailing window, ascending by day.
func (s *Selector) dailySales(productID string, days int) ([]dailyPoint, error) {
	since := s.now().AddDate(0, 0, -days)
	sales, err := s.store.SalesSince(productID, since, 0)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int)
	for _, sale := range sales {
		day := sale.CreatedAt.Format("2006-01-02")
		totals[day] += sale.Quantity
	}

	points := make([]dailyPoint, 0, len(totals))
	for day, quantity := range totals {
		points = append(points, dailyPoint{Date: day, Quantity: quantity})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points, nil
}

func averageQuantity(points []dailyPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	total := 0
	for _, point := range points {
		total += point.Quantity
	}
	return float64(total) / float64(len(points))
}

// ModelInfo describes a product's stored model snapshot with derived
// quality labels.
type ModelInfo struct {
	ProductID   string                 `json:"product_id"`
	ProductName string                 `json:"product_name,omitempty"`
	SKU         string                 `json:"sku,omitempty"`
	HasModel    bool                   `json:"has_model"`
	Message     string                 `json:"message,omitempty"`
	Model       map[string]interface{} `json:"model,omitempty"`
	Stats       map[string]interface{} `json:"stats,omitempty"`
}

// GetModelInfo returns the product's model snapshot and quality labels, or a
// has_model=false placeholder when the product was never trained.
func (s *Selector) GetModelInfo(productID string) (*ModelInfo, error) {
	var product model.Product
	if err := s.db.First(&product, "id = ?", productID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("product %s: %w", productID, apperr.ErrProductNotFound)
		}
		return nil, err
	}

	if product.ModelWeightA == nil || product.ModelTrainingCount == 0 {
		return &ModelInfo{
			ProductID: productID,
			HasModel:  false,
			Message:   "No model trained yet. Model will learn from sales transactions.",
		}, nil
	}

	var seasonality map[string]interface{}
	if product.ModelSeasonality != "" {
		_ = json.Unmarshal([]byte(product.ModelSeasonality), &seasonality)
	}

	confidenceLevel := "Low"
	if product.ModelConfidence >= 85 {
		confidenceLevel = "High"
	} else if product.ModelConfidence >= 70 {
		confidenceLevel = "Medium"
	}

	dataQuality := "Fair"
	if product.ModelTrainingCount >= 30 {
		dataQuality = "Excellent"
	} else if product.ModelTrainingCount >= 15 {
		dataQuality = "Good"
	}

	reliability := "Moderate"
	if product.ModelConfidence >= 80 && product.ModelTrainingCount >= 20 {
		reliability = "Reliable"
	}

	info := &ModelInfo{
		ProductID:   product.ID,
		ProductName: product.Name,
		SKU:         product.SKU,
		HasModel:    true,
		Model: map[string]interface{}{
			"slope":         *product.ModelWeightA,
			"intercept":     product.ModelWeightB,
			"confidence":    product.ModelConfidence,
			"trainingCount": product.ModelTrainingCount,
			"lastUpdated":   product.ModelLastUpdated,
		},
		Stats: map[string]interface{}{
			"confidenceLevel": confidenceLevel,
			"dataQuality":     dataQuality,
			"reliability":     reliability,
		},
	}
	if seasonality != nil {
		info.Model["trend"] = seasonality["trend"]
		info.Model["hasSeasonality"] = seasonality["hasPattern"]
	}
	return info, nil
}

// weeklyFactor extracts the weekday multiplier from the stored seasonality
// blob, defaulting to 1.0 when absent or unparsable.
func weeklyFactor(seasonality string, weekday time.Weekday) float64 {
	if seasonality == "" {
		return 1.0
	}
	var parsed struct {
		Weekly map[string]float64 `json:"weekly"`
	}
	if err := json.Unmarshal([]byte(seasonality), &parsed); err != nil || parsed.Weekly == nil {
		return 1.0
	}
	if factor, ok := parsed.Weekly[fmt.Sprintf("%d", int(weekday))]; ok {
		return factor
	}
	return 1.0
}
