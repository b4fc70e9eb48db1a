package weather

import "math"

// Fixed scoring policy. The composite weighs four normalized sub-scores and
// the weights sum to 1.0; changing them changes every persisted rating, so
// they are deployment constants, not configuration.
const (
	weightCloudCover    = 0.4
	weightPrecipitation = 0.3
	weightDewPoint      = 0.15
	weightVisibility    = 0.15

	// Dew point spread comfort band in degrees Celsius: full score below
	// the low bound, linear falloff to zero at the high bound.
	dewPointLowCelsius  = 5.0
	dewPointHighCelsius = 10.0

	// Visibility scores linearly up to this clip, in meters.
	idealVisibilityMeters = 20000.0
)

// HourlyObservation is one hour of forecast metrics.
type HourlyObservation struct {
	DewPointCelsius          float64
	PrecipitationProbability float64
	CloudCoverPercent        float64
	VisibilityMeters         float64
}

// hourlyRating scores one observation 0..100. Lower cloud cover and
// precipitation raise the score, higher visibility raises it, and a dew
// point inside the comfort band raises it.
func hourlyRating(observation HourlyObservation) float64 {
	cloudRating := math.Max(0, 100-observation.CloudCoverPercent)
	precipitationRating := math.Max(0, 100-observation.PrecipitationProbability)

	var dewRating float64
	switch {
	case observation.DewPointCelsius < dewPointLowCelsius:
		dewRating = 100
	case observation.DewPointCelsius <= dewPointHighCelsius:
		bandWidth := dewPointHighCelsius - dewPointLowCelsius
		dewRating = 100 - (observation.DewPointCelsius-dewPointLowCelsius)*(100/bandWidth)
	default:
		dewRating = 0
	}

	visibilityRating := math.Min(100, observation.VisibilityMeters/idealVisibilityMeters*100)

	return weightCloudCover*cloudRating +
		weightPrecipitation*precipitationRating +
		weightDewPoint*dewRating +
		weightVisibility*visibilityRating
}

// averageRating scores a window as the mean of its hourly ratings.
func averageRating(observations []HourlyObservation) float64 {
	if len(observations) == 0 {
		return 0
	}
	var sum float64
	for _, observation := range observations {
		sum += hourlyRating(observation)
	}
	return sum / float64(len(observations))
}
