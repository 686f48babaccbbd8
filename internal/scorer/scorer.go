// Package scorer maintains the rolling aggregate threat score.
package scorer

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/telhawk-systems/secmon/internal/errs"
	"github.com/telhawk-systems/secmon/internal/metrics"
	"github.com/telhawk-systems/secmon/internal/models"
)

const (
	minScore = 0
	maxScore = 100

	// defaultWeight scores event types with no configured weight.
	defaultWeight = 1
)

// Scorer tracks a single process-wide threat score in [0,100]. Each event
// adds a severity-weighted increment; the score decays exponentially with
// the configured half-life. Decay is applied lazily under the mutex on
// every update and read, so concurrent observers always see a consistent
// value.
type Scorer struct {
	mu       sync.Mutex
	score    float64
	lastSeen time.Time

	weights  map[models.EventType]float64
	halfLife time.Duration
	now      func() time.Time
}

// New creates a Scorer. Negative weights and a non-positive half-life are
// configuration errors. now may be nil to use the wall clock.
func New(weights map[string]float64, halfLife time.Duration, now func() time.Time) (*Scorer, error) {
	if halfLife <= 0 {
		return nil, &errs.ConfigurationError{Key: "scorer.half_life", Err: fmt.Errorf("must be positive, got %s", halfLife)}
	}
	typed := make(map[models.EventType]float64, len(weights))
	for eventType, weight := range weights {
		if weight < 0 {
			return nil, &errs.ConfigurationError{Key: "scorer.weights." + eventType, Err: fmt.Errorf("must be non-negative, got %f", weight)}
		}
		typed[models.EventType(eventType)] = weight
	}
	if now == nil {
		now = time.Now
	}
	return &Scorer{
		weights:  typed,
		halfLife: halfLife,
		now:      now,
		lastSeen: now(),
	}, nil
}

// Update applies the event's weighted increment and returns the new score.
func (s *Scorer) Update(event models.SecurityEvent) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decayLocked()

	weight, ok := s.weights[event.EventType]
	if !ok {
		weight = defaultWeight
	}
	s.score = clamp(s.score + weight)
	metrics.ThreatScore.Set(s.score)
	return s.score
}

// CurrentScore returns the score with decay applied up to now.
func (s *Scorer) CurrentScore() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decayLocked()
	metrics.ThreatScore.Set(s.score)
	return s.score
}

// Band returns the threat band for the current score.
func (s *Scorer) Band() string {
	return models.ThreatBand(s.CurrentScore())
}

// decayLocked applies exponential decay for the time elapsed since the last
// observation. Callers must hold the mutex.
func (s *Scorer) decayLocked() {
	now := s.now()
	elapsed := now.Sub(s.lastSeen)
	if elapsed > 0 {
		s.score = clamp(s.score * math.Pow(0.5, elapsed.Seconds()/s.halfLife.Seconds()))
	}
	s.lastSeen = now
}

func clamp(score float64) float64 {
	return math.Min(maxScore, math.Max(minScore, score))
}
