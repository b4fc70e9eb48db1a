package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// ErrProviderUnavailable marks a forecast fetch failure. The evaluator
// absorbs it into an unknown rating; it never reaches booking flows.
var ErrProviderUnavailable = errors.New("forecast provider unavailable")

const (
	defaultBaseURL        = "https://api.open-meteo.com/v1/forecast"
	defaultRequestTimeout = 10 * time.Second

	hourlyMetrics   = "dew_point_2m,precipitation_probability,cloud_cover,visibility"
	hourlyTimestamp = "2006-01-02T15:04"
)

// Forecast maps hour-truncated UTC instants to observations.
type Forecast map[time.Time]HourlyObservation

// ForecastProvider fetches hourly forecast data for a geographic point.
type ForecastProvider interface {
	HourlyForecast(ctx context.Context, latitude float64, longitude float64, timezone string) (Forecast, error)
}

// ClientOption configures an open-meteo client.
type ClientOption func(*Client)

// WithBaseURL overrides the forecast endpoint, for tests.
func WithBaseURL(baseURL string) ClientOption {
	return func(client *Client) {
		client.baseURL = baseURL
	}
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = httpClient
	}
}

// Client fetches hourly forecasts from the open-meteo API. Every request is
// bounded by the client timeout so a stalled provider never blocks callers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// NewClient wires a forecast client.
func NewClient(logger *zap.Logger, options ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		baseURL:    defaultBaseURL,
		logger:     logger,
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client
}

type hourlyPayload struct {
	Hourly struct {
		Time                     []string  `json:"time"`
		DewPoint                 []float64 `json:"dew_point_2m"`
		PrecipitationProbability []float64 `json:"precipitation_probability"`
		CloudCover               []float64 `json:"cloud_cover"`
		Visibility               []float64 `json:"visibility"`
	} `json:"hourly"`
}

// HourlyForecast fetches and aligns the hourly metric arrays. Hours whose
// timestamp fails to parse are skipped; rows past the shortest metric array
// are dropped rather than misaligned.
func (client *Client) HourlyForecast(ctx context.Context, latitude float64, longitude float64, timezone string) (Forecast, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrProviderUnavailable, timezone)
	}

	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%v", latitude))
	query.Set("longitude", fmt.Sprintf("%v", longitude))
	query.Set("hourly", hourlyMetrics)
	query.Set("timezone", timezone)
	endpoint := client.baseURL + "?" + query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, response.StatusCode)
	}

	var payload hourlyPayload
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	rows := len(payload.Hourly.Time)
	for _, metric := range [][]float64{
		payload.Hourly.DewPoint,
		payload.Hourly.PrecipitationProbability,
		payload.Hourly.CloudCover,
		payload.Hourly.Visibility,
	} {
		if len(metric) < rows {
			rows = len(metric)
		}
	}

	forecast := make(Forecast, rows)
	for index := 0; index < rows; index++ {
		stamp, err := time.ParseInLocation(hourlyTimestamp, payload.Hourly.Time[index], location)
		if err != nil {
			client.logger.Warn("skipping unparseable forecast hour",
				zap.String("time", payload.Hourly.Time[index]),
				zap.Error(err))
			continue
		}
		forecast[stamp.UTC()] = HourlyObservation{
			DewPointCelsius:          payload.Hourly.DewPoint[index],
			PrecipitationProbability: payload.Hourly.PrecipitationProbability[index],
			CloudCoverPercent:        payload.Hourly.CloudCover[index],
			VisibilityMeters:         payload.Hourly.Visibility[index],
		}
	}
	return forecast, nil
}
