package models

import "strings"

// DatasetMode selects which data-source labels are attached to a report.
type DatasetMode string

const (
	DatasetIMD      DatasetMode = "IMD"
	DatasetGlobal   DatasetMode = "Global"
	DatasetCombined DatasetMode = "Combined"
)

// ParseDatasetMode maps a caller-supplied flag to a DatasetMode.
// Matching is case-insensitive; unknown or empty values resolve to Combined.
func ParseDatasetMode(s string) DatasetMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "imd":
		return DatasetIMD
	case "global":
		return DatasetGlobal
	default:
		return DatasetCombined
	}
}

// Location is the point a report is computed for.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	CityName  string  `json:"city_name,omitempty"`
}

// DateRange is the requested calendar window. Dates are passed through as-is.
type DateRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
}

// ConditionEstimate is one named condition in a report.
type ConditionEstimate struct {
	Probability float64 `json:"probability"`
	Label       string  `json:"label"`
	Threshold   string  `json:"threshold"`
	Description string  `json:"description"`
}

// ResponseSummary is descriptive metadata attached to every report.
type ResponseSummary struct {
	DataPoints  int    `json:"data_points"`
	DateRange   string `json:"date_range"`
	Location    string `json:"location"`
	RiskLevel   string `json:"risk_level"`
	DataQuality string `json:"data_quality"`
}

// Probabilities keeps the wire order rain, extreme_heat, high_wind, cloudy, good_weather, summary.
type Probabilities struct {
	Rain        ConditionEstimate `json:"rain"`
	ExtremeHeat ConditionEstimate `json:"extreme_heat"`
	HighWind    ConditionEstimate `json:"high_wind"`
	Cloudy      ConditionEstimate `json:"cloudy"`
	GoodWeather ConditionEstimate `json:"good_weather"`
	Summary     ResponseSummary   `json:"summary"`
}

// WeatherReport is the response for a single location and date range.
type WeatherReport struct {
	Location       Location      `json:"location"`
	DateRange      DateRange     `json:"date_range"`
	Probabilities  Probabilities `json:"probabilities"`
	AIInsights     string        `json:"ai_insights,omitempty"`
	DataSources    []string      `json:"data_sources"`
	AnalysisPeriod string        `json:"analysis_period"`
	DatasetMode    DatasetMode   `json:"dataset_mode"`
}
