package estimator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/pastcast-service/internal/models"
)

func TestCompare_CapsAtThreeAndKeepsOrder(t *testing.T) {
	locs := []models.Location{
		{Latitude: 5, CityName: "A"},
		{Latitude: 25, CityName: "B"},
		{Latitude: 45, CityName: "C"},
		{Latitude: 65, CityName: "D"},
	}

	reports := Compare(locs, testRange, models.DatasetGlobal)

	require.Len(t, reports, 3)
	assert.Equal(t, "A", reports[0].Location.CityName)
	assert.Equal(t, "B", reports[1].Location.CityName)
	assert.Equal(t, "C", reports[2].Location.CityName)
	for _, r := range reports {
		assert.Empty(t, r.AIInsights)
	}
}

func TestCompare_Empty(t *testing.T) {
	assert.Empty(t, Compare(nil, testRange, models.DatasetCombined))
}

func TestSummarize_BestAndWorst(t *testing.T) {
	reports := Compare([]models.Location{
		{Latitude: 45, CityName: "Lyon"},
		{Latitude: 12.9, CityName: "Bengaluru"},
		{Latitude: 5, CityName: "Accra"},
	}, testRange, models.DatasetCombined)

	s := Summarize(reports, testRange)

	assert.Equal(t, 3, s.TotalLocations)
	assert.Equal(t, "2025-05-10", s.ComparisonDate)
	assert.Equal(t, models.RankedLocation{City: "Bengaluru", Probability: 0.7}, s.BestLocations[ConditionExtremeHeat])
	assert.Equal(t, models.RankedLocation{City: "Lyon", Probability: 10.0}, s.WorstLocations[ConditionExtremeHeat])
	assert.Equal(t, models.RankedLocation{City: "Bengaluru", Probability: 73.8}, s.BestLocations[ConditionGoodWeather])
	assert.Equal(t, models.RankedLocation{City: "Lyon", Probability: 71.0}, s.WorstLocations[ConditionGoodWeather])
	// Equal rain everywhere: the first location wins both sides.
	assert.Equal(t, "Lyon", s.BestLocations[ConditionRain].City)
	assert.Equal(t, "Lyon", s.WorstLocations[ConditionRain].City)
}

func TestSummarize_NoReports(t *testing.T) {
	s := Summarize(nil, testRange)
	assert.Zero(t, s.TotalLocations)
	assert.Empty(t, s.BestLocations)
}

func TestRankedLocation_JSONPair(t *testing.T) {
	raw, err := json.Marshal(models.RankedLocation{City: "Paris", Probability: 71})
	require.NoError(t, err)
	assert.JSONEq(t, `["Paris", 71]`, string(raw))

	var back models.RankedLocation
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "Paris", back.City)

	assert.Error(t, json.Unmarshal([]byte(`["Paris"]`), &back))
}
