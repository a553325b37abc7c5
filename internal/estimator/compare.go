package estimator

import "github.com/kjstillabower/pastcast-service/internal/models"

// Condition names used as keys in a comparison summary.
const (
	ConditionRain        = "rain"
	ConditionExtremeHeat = "extreme_heat"
	ConditionHighWind    = "high_wind"
	ConditionCloudy      = "cloudy"
	ConditionGoodWeather = "good_weather"
)

// Compare evaluates each location independently against one date range.
// Only the first MaxComparisonLocations are evaluated; order is preserved.
func Compare(locs []models.Location, dr models.DateRange, mode models.DatasetMode) []models.WeatherReport {
	locs = CapLocations(locs)
	out := make([]models.WeatherReport, 0, len(locs))
	for _, loc := range locs {
		out = append(out, Estimate(loc, dr, mode, false))
	}
	return out
}

// CapLocations truncates a comparison to MaxComparisonLocations entries.
func CapLocations[T any](locs []T) []T {
	if len(locs) > MaxComparisonLocations {
		return locs[:MaxComparisonLocations]
	}
	return locs
}

type conditionRank struct {
	name         string
	higherBetter bool
	value        func(models.Probabilities) float64
}

var rankedConditions = []conditionRank{
	{ConditionRain, false, func(p models.Probabilities) float64 { return p.Rain.Probability }},
	{ConditionExtremeHeat, false, func(p models.Probabilities) float64 { return p.ExtremeHeat.Probability }},
	{ConditionHighWind, false, func(p models.Probabilities) float64 { return p.HighWind.Probability }},
	{ConditionCloudy, false, func(p models.Probabilities) float64 { return p.Cloudy.Probability }},
	{ConditionGoodWeather, true, func(p models.Probabilities) float64 { return p.GoodWeather.Probability }},
}

// Summarize picks the best and worst location per condition. Good weather is
// better when higher; every other condition is better when lower. Ties keep
// the earlier report.
func Summarize(reports []models.WeatherReport, dr models.DateRange) models.ComparisonSummary {
	summary := models.ComparisonSummary{
		BestLocations:  make(map[string]models.RankedLocation, len(rankedConditions)),
		WorstLocations: make(map[string]models.RankedLocation, len(rankedConditions)),
		TotalLocations: len(reports),
		ComparisonDate: dr.StartDate,
	}
	if len(reports) == 0 {
		return summary
	}
	for _, c := range rankedConditions {
		best, worst := 0, 0
		for i := 1; i < len(reports); i++ {
			v := c.value(reports[i].Probabilities)
			if better(v, c.value(reports[best].Probabilities), c.higherBetter) {
				best = i
			}
			if better(c.value(reports[worst].Probabilities), v, c.higherBetter) {
				worst = i
			}
		}
		summary.BestLocations[c.name] = rank(reports[best], c.value)
		summary.WorstLocations[c.name] = rank(reports[worst], c.value)
	}
	return summary
}

func better(a, b float64, higherBetter bool) bool {
	if higherBetter {
		return a > b
	}
	return a < b
}

func rank(r models.WeatherReport, value func(models.Probabilities) float64) models.RankedLocation {
	return models.RankedLocation{City: r.Location.CityName, Probability: value(r.Probabilities)}
}
