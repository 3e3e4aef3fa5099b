// Package trust tracks per-source reliability with exponentially weighted
// moving averages. The resulting trust level feeds the confidence
// calculator as source reliability.
package trust

import (
	"sync"
	"time"

	"github.com/omen-systems/omen/internal/domain"
)

// Level buckets a source's reliability
type Level string

const (
	LevelUntrusted     Level = "UNTRUSTED"
	LevelLow           Level = "LOW"
	LevelMedium        Level = "MEDIUM"
	LevelHigh          Level = "HIGH"
	LevelAuthoritative Level = "AUTHORITATIVE"
)

// emaAlpha weights new observations against history
const emaAlpha = 0.2

// Score is the mutable trust state of one source
type Score struct {
	Source        domain.Source `json:"source"`
	AccuracyRate  float64       `json:"accuracy_rate"`
	ErrorRate     float64       `json:"error_rate"`
	AvgLatencyMS  float64       `json:"avg_latency_ms"`
	DataFreshness float64       `json:"data_freshness"`
	Level         Level         `json:"trust_level"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Manager holds trust scores for all sources. Updates are EMA-smoothed
// under a per-source mutex.
type Manager struct {
	mu     sync.Mutex
	scores map[domain.Source]*Score
}

// NewManager seeds every known source at medium trust
func NewManager() *Manager {
	m := &Manager{scores: make(map[domain.Source]*Score)}
	for _, src := range domain.AllSources {
		m.scores[src] = &Score{
			Source:        src,
			AccuracyRate:  0.7,
			ErrorRate:     0.1,
			AvgLatencyMS:  200,
			DataFreshness: 0.8,
			Level:         LevelMedium,
		}
	}
	return m
}

// RecordOutcome folds one fetch outcome into the source's trust score
func (m *Manager) RecordOutcome(src domain.Source, ok bool, latency time.Duration, freshness float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.scores[src]
	if !exists {
		s = &Score{Source: src, AccuracyRate: 0.5, ErrorRate: 0.5, Level: LevelLow}
		m.scores[src] = s
	}

	errSample := 1.0
	accSample := 0.0
	if ok {
		errSample = 0.0
		accSample = 1.0
	}

	s.ErrorRate = ema(s.ErrorRate, errSample)
	s.AccuracyRate = ema(s.AccuracyRate, accSample)
	s.AvgLatencyMS = ema(s.AvgLatencyMS, float64(latency.Milliseconds()))
	if freshness >= 0 {
		s.DataFreshness = ema(s.DataFreshness, clamp01(freshness))
	}
	s.Level = levelFor(s)
	s.UpdatedAt = time.Now()
}

// Reliability returns the [0,1] reliability used by the confidence model
func (m *Manager) Reliability(src domain.Source) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scores[src]
	if !ok {
		return 0.5
	}
	return clamp01(0.6*s.AccuracyRate + 0.2*(1-s.ErrorRate) + 0.2*s.DataFreshness)
}

// Get returns a copy of the source's score
func (m *Manager) Get(src domain.Source) (Score, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scores[src]
	if !ok {
		return Score{}, false
	}
	return *s, true
}

// All returns copies of every score keyed by source
func (m *Manager) All() map[domain.Source]Score {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[domain.Source]Score, len(m.scores))
	for src, s := range m.scores {
		out[src] = *s
	}
	return out
}

// Reset restores seed scores. Test hook.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = NewManager().scores
}

func levelFor(s *Score) Level {
	score := 0.6*s.AccuracyRate + 0.2*(1-s.ErrorRate) + 0.2*s.DataFreshness
	switch {
	case score >= 0.9:
		return LevelAuthoritative
	case score >= 0.75:
		return LevelHigh
	case score >= 0.5:
		return LevelMedium
	case score >= 0.25:
		return LevelLow
	default:
		return LevelUntrusted
	}
}

func ema(prev, sample float64) float64 {
	return emaAlpha*sample + (1-emaAlpha)*prev
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
