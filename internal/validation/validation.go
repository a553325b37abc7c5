package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/kjstillabower/pastcast-service/internal/models"
)

// MaxCityNameLength bounds city_name in runes.
const MaxCityNameLength = 120

// ValidationError reports request fields that are missing or malformed.
// Handlers map it to 400 VALIDATION_ERROR.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "missing required fields"
	}
	return fmt.Sprintf("%s: %s", reason, strings.Join(e.Fields, ", "))
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrCityNameTooLong is returned when city_name exceeds MaxCityNameLength.
var ErrCityNameTooLong = errors.New("city_name too long")

// ErrCityNameInvalidChars is returned when city_name contains control characters.
var ErrCityNameInvalidChars = errors.New("city_name contains invalid characters")

// ProbabilityInput converts a probability request to domain values.
// Location, both coordinates and date_range.start_date are required.
func ProbabilityInput(req models.ProbabilityRequest) (models.Location, models.DateRange, error) {
	var missing []string
	missing = append(missing, missingLocationFields("location", req.Location)...)
	missing = append(missing, missingDateFields(req.DateRange)...)
	if len(missing) > 0 {
		return models.Location{}, models.DateRange{}, &ValidationError{Fields: missing}
	}
	loc, err := toLocation("location", *req.Location)
	if err != nil {
		return models.Location{}, models.DateRange{}, err
	}
	return loc, toDateRange(*req.DateRange), nil
}

// CompareInput converts a comparison request to domain values. At least one
// location is required; only the locations that will be evaluated are checked.
func CompareInput(req models.CompareRequest, maxLocations int) ([]models.Location, models.DateRange, error) {
	var missing []string
	if len(req.Locations) == 0 {
		missing = append(missing, "locations")
	}
	inputs := req.Locations
	if maxLocations > 0 && len(inputs) > maxLocations {
		inputs = inputs[:maxLocations]
	}
	for i := range inputs {
		in := inputs[i]
		missing = append(missing, missingLocationFields(fmt.Sprintf("locations[%d]", i), &in)...)
	}
	missing = append(missing, missingDateFields(req.DateRange)...)
	if len(missing) > 0 {
		return nil, models.DateRange{}, &ValidationError{Fields: missing}
	}

	locs := make([]models.Location, 0, len(inputs))
	for i, in := range inputs {
		loc, err := toLocation(fmt.Sprintf("locations[%d]", i), in)
		if err != nil {
			return nil, models.DateRange{}, err
		}
		locs = append(locs, loc)
	}
	return locs, toDateRange(*req.DateRange), nil
}

// MetricInput trims and checks the metric request. All three fields are required.
func MetricInput(req models.MetricRequest) (models.MetricRequest, error) {
	out := models.MetricRequest{
		Location: strings.TrimSpace(req.Location),
		Date:     strings.TrimSpace(req.Date),
		Metric:   strings.TrimSpace(req.Metric),
	}
	var missing []string
	if out.Location == "" {
		missing = append(missing, "location")
	}
	if out.Date == "" {
		missing = append(missing, "date")
	}
	if out.Metric == "" {
		missing = append(missing, "metric")
	}
	if len(missing) > 0 {
		return models.MetricRequest{}, &ValidationError{Fields: missing}
	}
	return out, nil
}

// Coordinates checks that lat/lon are finite and within WGS84 bounds.
func Coordinates(lat, lon float64) error {
	var bad []string
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		bad = append(bad, "lat")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		bad = append(bad, "lon")
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad, Reason: "coordinates out of range"}
	}
	return nil
}

// CityName trims the input and enforces the length bound and character set.
// An empty name is valid; the estimator substitutes a placeholder.
func CityName(input string) (string, error) {
	s := strings.TrimSpace(input)
	if len([]rune(s)) > MaxCityNameLength {
		return "", ErrCityNameTooLong
	}
	for _, c := range s {
		if unicode.IsControl(c) {
			return "", ErrCityNameInvalidChars
		}
	}
	return s, nil
}

func missingLocationFields(prefix string, in *models.LocationInput) []string {
	if in == nil {
		return []string{prefix}
	}
	var missing []string
	if in.Latitude == nil {
		missing = append(missing, prefix+".latitude")
	}
	if in.Longitude == nil {
		missing = append(missing, prefix+".longitude")
	}
	return missing
}

func missingDateFields(in *models.DateRangeInput) []string {
	if in == nil || strings.TrimSpace(in.StartDate) == "" {
		return []string{"date_range.start_date"}
	}
	return nil
}

func toLocation(prefix string, in models.LocationInput) (models.Location, error) {
	city, err := CityName(in.CityName)
	if err != nil {
		return models.Location{}, &ValidationError{Fields: []string{prefix + ".city_name"}, Reason: err.Error()}
	}
	return models.Location{Latitude: *in.Latitude, Longitude: *in.Longitude, CityName: city}, nil
}

func toDateRange(in models.DateRangeInput) models.DateRange {
	start := strings.TrimSpace(in.StartDate)
	end := strings.TrimSpace(in.EndDate)
	if end == "" {
		end = start
	}
	return models.DateRange{StartDate: start, EndDate: end}
}
