// Package weather rates observation slots 0..100 against hourly forecast
// data and persists the results on upcoming slots.
package weather

import (
	"context"
	"math"
	"time"

	"github.com/MarkoPoloResearchLab/observatory/pkg/booking"
	"github.com/MarkoPoloResearchLab/observatory/pkg/cache"
	"go.uber.org/zap"
)

const (
	// forecastTTL bounds external calls: one provider fetch per geographic
	// point per three hours, shared by every slot at that point.
	forecastTTL = 3 * time.Hour

	// refreshHorizon limits batch refreshes to slots starting soon enough
	// for the hourly forecast to cover them.
	refreshHorizon = 7 * 24 * time.Hour
)

// point keys the forecast cache. Caching is per geographic point, not per
// slot.
type point struct {
	latitude  float64
	longitude float64
	timezone  string
}

// Storage is the slice of persistence the evaluator needs.
type Storage interface {
	GetConfiguration(ctx context.Context) (booking.Configuration, error)
	ListSlotsStartingBetween(ctx context.Context, from time.Time, to time.Time) ([]booking.Slot, error)
	UpdateSlotWeather(ctx context.Context, slotID booking.SlotID, assessment booking.WeatherAssessment, refreshedAt time.Time) error
}

// Evaluator computes suitability assessments. It implements
// booking.WeatherRater.
type Evaluator struct {
	provider  ForecastProvider
	forecasts *cache.Cache[point, Forecast]
	logger    *zap.Logger
	nowFn     func() time.Time
}

// NewEvaluator wires an evaluator around a forecast provider.
func NewEvaluator(provider ForecastProvider, logger *zap.Logger, now func() time.Time) *Evaluator {
	return &Evaluator{
		provider:  provider,
		forecasts: cache.New[point, Forecast](),
		logger:    logger,
		nowFn:     now,
	}
}

// Rate scores the window. Provider failures and uncovered windows yield an
// unknown rating with the warning flag raised; a numeric default is never
// substituted. The threshold comparison happens here, outside the cache, so
// a threshold change is honored within a live TTL window.
func (evaluator *Evaluator) Rate(ctx context.Context, start time.Time, end time.Time, configuration booking.Configuration) booking.WeatherAssessment {
	forecast, err := evaluator.cachedForecast(ctx, configuration)
	if err != nil {
		evaluator.logger.Warn("forecast fetch failed, rating unknown",
			zap.Float64("latitude", configuration.Latitude),
			zap.Float64("longitude", configuration.Longitude),
			zap.Error(err))
		return booking.WeatherAssessment{Warning: true}
	}

	observations := make([]HourlyObservation, 0)
	for _, hour := range hourlyRange(start, end) {
		if observation, covered := forecast[hour]; covered {
			observations = append(observations, observation)
		}
	}
	if len(observations) == 0 {
		return booking.WeatherAssessment{Warning: true}
	}

	rating := int(math.Round(averageRating(observations)))
	return booking.WeatherAssessment{
		Rating:            &rating,
		Warning:           rating < configuration.WeatherThreshold,
		ForecastAvailable: true,
	}
}

// RefreshAll re-rates every slot starting inside the horizon and persists
// the outcome. One slot failing does not abort the batch; it is recorded as
// unknown and counted separately.
func (evaluator *Evaluator) RefreshAll(ctx context.Context, storage Storage) (int, int, error) {
	configuration, err := storage.GetConfiguration(ctx)
	if err != nil {
		return 0, 0, err
	}
	now := evaluator.nowFn()
	slots, err := storage.ListSlotsStartingBetween(ctx, now, now.Add(refreshHorizon))
	if err != nil {
		return 0, 0, err
	}

	updated, failed := 0, 0
	for _, slot := range slots {
		assessment := evaluator.Rate(ctx, slot.StartTime, slot.EndTime, configuration)
		if err := storage.UpdateSlotWeather(ctx, slot.ID, assessment, now.UTC()); err != nil {
			failed++
			evaluator.logger.Error("persisting slot weather failed",
				zap.String("slot_id", slot.ID.String()),
				zap.Error(err))
			continue
		}
		if assessment.ForecastAvailable {
			updated++
		} else {
			failed++
		}
	}
	evaluator.logger.Info("weather refresh finished",
		zap.Int("updated", updated),
		zap.Int("failed", failed),
		zap.Int("slots", len(slots)))
	return updated, failed, nil
}

func (evaluator *Evaluator) cachedForecast(ctx context.Context, configuration booking.Configuration) (Forecast, error) {
	key := point{
		latitude:  configuration.Latitude,
		longitude: configuration.Longitude,
		timezone:  configuration.Timezone,
	}
	return evaluator.forecasts.GetOrCompute(key, forecastTTL, func() (Forecast, error) {
		return evaluator.provider.HourlyForecast(ctx, key.latitude, key.longitude, key.timezone)
	})
}

// hourlyRange lists the hour-truncated UTC instants covering [start, end].
func hourlyRange(start time.Time, end time.Time) []time.Time {
	first := start.UTC().Truncate(time.Hour)
	if end.Before(start) {
		return nil
	}
	hours := int(end.UTC().Sub(first)/time.Hour) + 1
	instants := make([]time.Time, 0, hours)
	for index := 0; index < hours; index++ {
		instants = append(instants, first.Add(time.Duration(index)*time.Hour))
	}
	return instants
}
