package weather

import "github.com/lox/balloonpredict/internal/models"

// Stats accumulates the quality of the samples drawn along one flight leg.
type Stats struct {
	Samples       int
	Extrapolated  int
	MinConfidence float64
	sum           float64
}

func (s *Stats) Add(wc models.WeatherConditions) {
	if s.Samples == 0 || wc.Confidence < s.MinConfidence {
		s.MinConfidence = wc.Confidence
	}
	s.Samples++
	s.sum += wc.Confidence
	if wc.Extrapolated {
		s.Extrapolated++
	}
}

// Merge folds other into s.
func (s *Stats) Merge(other Stats) {
	if other.Samples == 0 {
		return
	}
	if s.Samples == 0 || other.MinConfidence < s.MinConfidence {
		s.MinConfidence = other.MinConfidence
	}
	s.Samples += other.Samples
	s.Extrapolated += other.Extrapolated
	s.sum += other.sum
}

func (s Stats) MeanConfidence() float64 {
	if s.Samples == 0 {
		return 0
	}
	return s.sum / float64(s.Samples)
}

// ExtrapolatedFraction is the share of samples taken outside the data.
func (s Stats) ExtrapolatedFraction() float64 {
	if s.Samples == 0 {
		return 0
	}
	return float64(s.Extrapolated) / float64(s.Samples)
}
