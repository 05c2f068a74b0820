package forecast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeSeriesRequest is the payload for the forecasting service's /predict
// endpoint.
type TimeSeriesRequest struct {
	Dates      []string `json:"dates"`
	Quantities []int    `json:"quantities"`
	ProductID  string   `json:"product_id"`
	DaysAhead  int      `json:"days_ahead"`
}

// ConfidenceIntervals carries the per-day forecast bounds.
type ConfidenceIntervals struct {
	Lower  []float64 `json:"lower"`
	Median []float64 `json:"median"`
	Upper  []float64 `json:"upper"`
}

// PredictionMetadata is the diagnostic block returned with every forecast.
type PredictionMetadata struct {
	Trend           string  `json:"trend"`
	HistoricalMean  float64 `json:"historical_mean"`
	PredictedMean   float64 `json:"predicted_mean"`
	HasSeasonality  bool    `json:"has_seasonality"`
	ForecastHorizon int     `json:"forecast_horizon"`
	ContextLength   int     `json:"context_length"`
	Model           string  `json:"model"`
	ConfidenceRange string  `json:"confidence_range"`
}

// PredictionResponse is the forecasting service's /predict response.
type PredictionResponse struct {
	ProductID           string              `json:"product_id"`
	Predictions         []float64           `json:"predictions"`
	PredictionDates     []string            `json:"prediction_dates"`
	ConfidenceIntervals ConfidenceIntervals `json:"confidence_intervals"`
	ModelType           string              `json:"model_type"`
	Metadata            PredictionMetadata  `json:"metadata"`
}

type healthResponse struct {
	Status     string `json:"status"`
	ModelReady bool   `json:"model_ready"`
	Device     string `json:"device"`
}

// Prober gates predict attempts on service reachability. It is an interface
// so tests and callers can substitute their own availability policy.
type Prober interface {
	Available() bool
}

// Client talks to the external time-series forecasting service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	healthTTL time.Duration
	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
}

// NewClient creates a forecasting service client. healthTTL bounds how long a
// health probe result is trusted before the service is re-checked.
func NewClient(baseURL string, timeout, healthTTL time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		healthTTL:  healthTTL,
	}
}

// Available reports whether the forecasting service answered a recent health
// probe. Results are cached for the configured TTL.
func (c *Client) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.checkedAt) < c.healthTTL {
		return c.healthy
	}

	c.healthy = c.checkHealth()
	c.checkedAt = time.Now()
	return c.healthy
}

func (c *Client) checkHealth() bool {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Forecast service health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Forecast service unhealthy", zap.Int("status", resp.StatusCode))
		return false
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		c.logger.Warn("Failed to decode health response", zap.Error(err))
		return false
	}

	if health.Status != "healthy" {
		return false
	}

	c.logger.Debug("Forecast service available",
		zap.Bool("model_ready", health.ModelReady),
		zap.String("device", health.Device))
	return true
}

// Predict submits a time series and returns the service's forecast. A nil
// error with a non-nil response is the only success shape; transport errors,
// non-2xx statuses and malformed bodies all surface as errors so callers can
// fall through to a lower forecast tier.
func (c *Client) Predict(data *TimeSeriesRequest) (*PredictionResponse, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}

	c.logger.Info("Requesting forecast",
		zap.String("product_id", data.ProductID),
		zap.Int("points", len(data.Quantities)),
		zap.Int("days_ahead", data.DaysAhead))

	respBody, err := c.post("/predict", body)
	if err != nil {
		c.markUnavailable()
		return nil, err
	}

	var prediction PredictionResponse
	if err := json.Unmarshal(respBody, &prediction); err != nil {
		return nil, fmt.Errorf("decode predict response: %w", err)
	}
	if len(prediction.Predictions) == 0 {
		return nil, fmt.Errorf("forecast service returned empty prediction series")
	}
	if len(prediction.ConfidenceIntervals.Lower) < len(prediction.Predictions) ||
		len(prediction.ConfidenceIntervals.Upper) < len(prediction.Predictions) {
		return nil, fmt.Errorf("forecast service returned %d predictions with incomplete confidence intervals",
			len(prediction.Predictions))
	}

	c.logger.Info("Forecast received",
		zap.String("product_id", data.ProductID),
		zap.Float64("day1", prediction.Predictions[0]),
		zap.String("trend", prediction.Metadata.Trend))

	return &prediction, nil
}

// PredictBatch submits several series at once. The response slice is aligned
// with the request slice; individual elements may be nil when the service
// could not forecast that series.
func (c *Client) PredictBatch(data []*TimeSeriesRequest) ([]*PredictionResponse, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	c.logger.Info("Requesting batch forecast", zap.Int("series", len(data)))

	respBody, err := c.post("/predict-batch", body)
	if err != nil {
		c.markUnavailable()
		return nil, err
	}

	var predictions []*PredictionResponse
	if err := json.Unmarshal(respBody, &predictions); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}

	return predictions, nil
}

func (c *Client) post(path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Forecast request failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		c.logger.Error("Forecast request returned error status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(respBody)))
		return nil, fmt.Errorf("forecast service error: %d %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// markUnavailable records a failed request as an unhealthy probe result, so
// Available reports false until the TTL window expires.
func (c *Client) markUnavailable() {
	c.mu.Lock()
	c.healthy = false
	c.checkedAt = time.Now()
	c.mu.Unlock()
}
