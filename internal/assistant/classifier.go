// Package assistant answers chat messages from a fixed, ordered keyword rule
// table and samples mock per-metric probabilities.
package assistant

import (
	"strings"
)

// Canned responses.
const (
	EmptyPrompt         = "Please provide a location, date, and metric (e.g., rain %, temp °C)."
	ParisMayResponse    = "The average temperature in Paris in May for weddings is around 17°C to 20°C with mild rainfall."
	TemperatureResponse = "The average temperature is 22°C."
	unknownPrefix       = "Sorry, I don't have weather data for: "
)

// Rule names reported by Match.
const (
	RuleEmpty       = "empty"
	RuleParisMay    = "paris_wedding_may"
	RuleTemperature = "temperature"
	RuleUnknown     = "unknown"
)

type rule struct {
	name     string
	keywords []string // all must be present
	response string
}

// rules is evaluated in order; the more specific Paris rule must precede the
// generic temperature rule because both can match the same message.
var rules = []rule{
	{name: RuleParisMay, keywords: []string{"wedding", "paris", "may"}, response: ParisMayResponse},
	{name: RuleTemperature, keywords: []string{"temperature"}, response: TemperatureResponse},
}

// Result is the outcome of matching a message.
type Result struct {
	Rule     string
	Response string
}

// Classify returns the canned response for message.
func Classify(message string) string {
	return Match(message).Response
}

// Match returns the first matching rule and its response. Unmatched messages
// are echoed back unchanged inside the unknown-query template.
func Match(message string) Result {
	if strings.TrimSpace(message) == "" {
		return Result{Rule: RuleEmpty, Response: EmptyPrompt}
	}
	lower := strings.ToLower(message)
	for _, r := range rules {
		if containsAll(lower, r.keywords) {
			return Result{Rule: r.name, Response: r.response}
		}
	}
	return Result{Rule: RuleUnknown, Response: unknownPrefix + message}
}

func containsAll(s string, keywords []string) bool {
	for _, k := range keywords {
		if !strings.Contains(s, k) {
			return false
		}
	}
	return true
}
