package assistant

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Source is the randomness a Sampler draws from. *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

// Metric kinds reported by Sampler.Kind.
const (
	MetricRain     = "rain"
	MetricTemp     = "temperature"
	MetricHumidity = "humidity"
	MetricWind     = "wind"
	MetricOther    = "other"
)

type metricRange struct {
	kind     string
	patterns []string
	min      int
	width    int // draws fall in [min, min+width)
}

var metricRanges = []metricRange{
	{kind: MetricRain, patterns: []string{"rain", "precipitation"}, min: 0, width: 100},
	{kind: MetricTemp, patterns: []string{"temp", "temperature"}, min: 70, width: 30},
	{kind: MetricHumidity, patterns: []string{"humidity"}, min: 60, width: 40},
	{kind: MetricWind, patterns: []string{"wind"}, min: 50, width: 50},
}

var defaultRange = metricRange{kind: MetricOther, min: 20, width: 80}

// Sampler draws mock probabilities for named metrics. Safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	src Source
}

// NewSampler returns a Sampler drawing from src.
func NewSampler(src Source) *Sampler {
	return &Sampler{src: src}
}

// NewSeededSampler returns a Sampler over a PCG generator. A zero seed uses the current time.
func NewSeededSampler(seed uint64) *Sampler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return NewSampler(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// SampleProbability returns a whole percentage drawn uniformly from the range
// selected by the first metric rule whose substring appears in metric.
func (s *Sampler) SampleProbability(metric string) int {
	r := lookupRange(metric)
	s.mu.Lock()
	n := s.src.IntN(r.width)
	s.mu.Unlock()
	return r.min + n
}

// Kind returns the metric kind metric maps to.
func Kind(metric string) string {
	return lookupRange(metric).kind
}

func lookupRange(metric string) metricRange {
	lower := strings.ToLower(metric)
	for _, r := range metricRanges {
		for _, p := range r.patterns {
			if strings.Contains(lower, p) {
				return r
			}
		}
	}
	return defaultRange
}
