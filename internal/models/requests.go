package models

// LocationInput is the request shape of a location. Pointer coordinates
// distinguish an absent field from an explicit zero.
type LocationInput struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	CityName  string   `json:"city_name,omitempty"`
}

// DateRangeInput is the request shape of a date range.
type DateRangeInput struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
}

// ProbabilityRequest is the body of POST /api/weather/probability.
type ProbabilityRequest struct {
	Location          *LocationInput  `json:"location"`
	DateRange         *DateRangeInput `json:"date_range"`
	DatasetMode       string          `json:"dataset_mode,omitempty"`
	IncludeAIInsights bool            `json:"include_ai_insights"`
}

// CompareRequest is the body of POST /api/weather/compare.
type CompareRequest struct {
	Locations   []LocationInput `json:"locations"`
	DateRange   *DateRangeInput `json:"date_range"`
	DatasetMode string          `json:"dataset_mode,omitempty"`
}

// MetricRequest is the body of POST /api/weather/metric.
type MetricRequest struct {
	Location string `json:"location"`
	Date     string `json:"date"`
	Metric   string `json:"metric"`
}

// MetricResponse carries a sampled probability for a single metric.
type MetricResponse struct {
	Probability int    `json:"probability"`
	Location    string `json:"location"`
	Date        string `json:"date"`
	Metric      string `json:"metric"`
	Message     string `json:"message"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the body returned by the chat endpoint.
type ChatResponse struct {
	Response string `json:"response"`
}
