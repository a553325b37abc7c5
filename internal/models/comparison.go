package models

import (
	"encoding/json"
	"fmt"
)

// RankedLocation is a [city, probability] pair in a comparison summary.
type RankedLocation struct {
	City        string
	Probability float64
}

// MarshalJSON encodes the pair as a two-element JSON array.
func (r RankedLocation) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{r.City, r.Probability})
}

// UnmarshalJSON decodes a two-element [city, probability] array.
func (r *RankedLocation) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("ranked location: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &r.City); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &r.Probability)
}

// ComparisonSummary ranks compared locations per condition.
type ComparisonSummary struct {
	BestLocations  map[string]RankedLocation `json:"best_locations"`
	WorstLocations map[string]RankedLocation `json:"worst_locations"`
	TotalLocations int                       `json:"total_locations"`
	ComparisonDate string                    `json:"comparison_date"`
}

// ComparisonResponse is the body returned by the compare endpoint.
type ComparisonResponse struct {
	ComparisonResults []WeatherReport   `json:"comparison_results"`
	Summary           ComparisonSummary `json:"summary"`
}
