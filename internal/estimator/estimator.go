// Package estimator computes the condition probabilities shown for a location
// and date range. Every function is pure; the figures are placeholders until a
// historical data source is integrated.
package estimator

import (
	"fmt"
	"math"
	"strings"

	"github.com/kjstillabower/pastcast-service/internal/models"
)

const (
	// DefaultCityName is used when the caller did not name the location.
	DefaultCityName = "Selected Location"

	// MaxComparisonLocations caps how many locations a comparison evaluates.
	MaxComparisonLocations = 3

	rainProbability     = 42.3
	highWindProbability = 12.5
	cloudyProbability   = 51.2

	// coolCityHeat is returned for cities where a 40°C day is historically rare.
	coolCityHeat = 0.7

	imdCoastalAdjustment = 3.0

	summaryDataPoints  = 3650
	summaryDateRange   = "2005-2024"
	summaryRiskLevel   = "Moderate"
	summaryDataQuality = "High"
	analysisPeriod     = "Last 20 years"
)

var coolCities = []string{"bengaluru", "bangalore", "rayasandra"}

// Good-weather penalty weights.
const (
	rainWeight   = 0.45
	heatWeight   = 0.30
	windWeight   = 0.15
	cloudyWeight = 0.10
)

// Estimate builds the report for one location. Absent coordinates are zero and
// an empty city name becomes DefaultCityName; callers reject requests that
// lack required fields before calling in.
func Estimate(loc models.Location, dr models.DateRange, mode models.DatasetMode, includeInsights bool) models.WeatherReport {
	mode = models.ParseDatasetMode(string(mode))
	city := strings.TrimSpace(loc.CityName)
	if city == "" {
		city = DefaultCityName
	}
	loc.CityName = city
	if dr.EndDate == "" {
		dr.EndDate = dr.StartDate
	}

	heat := ExtremeHeat(loc, mode)
	good := GoodWeather(rainProbability, heat, highWindProbability, cloudyProbability)

	report := models.WeatherReport{
		Location:  loc,
		DateRange: dr,
		Probabilities: models.Probabilities{
			Rain: models.ConditionEstimate{
				Probability: rainProbability,
				Label:       "Rain Probability",
				Threshold:   "≥1 mm/day",
				Description: "Chance of precipitation exceeding 1 mm/day",
			},
			ExtremeHeat: models.ConditionEstimate{
				Probability: heat,
				Label:       "Extreme Heat",
				Threshold:   "40°C",
				Description: "Probability of daily max temperature exceeding threshold",
			},
			HighWind: models.ConditionEstimate{
				Probability: highWindProbability,
				Label:       "High Wind",
				Threshold:   ">20 km/h",
				Description: "Probability of wind speeds above 20 km/h",
			},
			Cloudy: models.ConditionEstimate{
				Probability: cloudyProbability,
				Label:       "Cloudy",
				Threshold:   ">70% cloud cover",
				Description: "Probability of high cloud cover conditions",
			},
			GoodWeather: models.ConditionEstimate{
				Probability: good,
				Label:       "Good Weather",
				Threshold:   "Composite score",
				Description: "Overall chance of favorable conditions",
			},
			Summary: models.ResponseSummary{
				DataPoints:  summaryDataPoints,
				DateRange:   summaryDateRange,
				Location:    city,
				RiskLevel:   summaryRiskLevel,
				DataQuality: summaryDataQuality,
			},
		},
		DataSources:    DataSources(mode),
		AnalysisPeriod: analysisPeriod,
		DatasetMode:    mode,
	}
	if includeInsights {
		report.AIInsights = Insight(city, rainProbability, good)
	}
	return report
}

// ExtremeHeat estimates the chance of a day above 40°C.
// Known cool cities short-circuit to a fixed low value; otherwise the value
// comes from the absolute-latitude band, lowered for southern India under IMD.
func ExtremeHeat(loc models.Location, mode models.DatasetMode) float64 {
	name := strings.ToLower(loc.CityName)
	for _, c := range coolCities {
		if strings.Contains(name, c) {
			return coolCityHeat
		}
	}

	var base float64
	switch lat := math.Abs(loc.Latitude); {
	case lat < 10:
		base = 3.0
	case lat < 20:
		base = 6.0
	case lat < 30:
		base = 8.0
	default:
		base = 10.0
	}
	if mode == models.DatasetIMD && loc.Latitude >= 8 && loc.Latitude <= 15 {
		base -= imdCoastalAdjustment
	}
	return clamp(base, 0, 100)
}

// GoodWeather derives the composite score from the other four conditions,
// clamped to [0, 100] and rounded to one decimal.
func GoodWeather(rain, heat, wind, cloudy float64) float64 {
	penalty := rain*rainWeight + heat*heatWeight + wind*windWeight + cloudy*cloudyWeight
	return roundTenth(clamp(100-penalty, 0, 100))
}

// DataSources returns the source labels for a dataset mode.
func DataSources(mode models.DatasetMode) []string {
	switch mode {
	case models.DatasetIMD:
		return []string{"IMD"}
	case models.DatasetGlobal:
		return []string{"NASA", "NOAA"}
	default:
		return []string{"IMD", "NASA", "NOAA"}
	}
}

// Insight renders the natural-language sentence attached when insights are requested.
func Insight(city string, rain, good float64) string {
	return fmt.Sprintf(
		"Based on historical patterns for %s, the selected period shows a %.1f%% chance of rain and a %.1f%% chance of good weather, with low-to-moderate extreme heat probability.",
		city, rain, good,
	)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
