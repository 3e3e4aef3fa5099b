// Package registry classifies configured sources as REAL, MOCK, or
// DISABLED and gates the switch to live mode: no enabled source may be
// running on mock data in production.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/config"
	"github.com/omen-systems/omen/internal/domain"
)

// SourceType classifies where a source's data comes from
type SourceType string

const (
	SourceReal     SourceType = "REAL"
	SourceMock     SourceType = "MOCK"
	SourceDisabled SourceType = "DISABLED"
)

// SourceStatus is one registry row
type SourceStatus struct {
	Source     domain.Source `json:"source"`
	Type       SourceType    `json:"type"`
	Provider   string        `json:"provider,omitempty"`
	Enabled    bool          `json:"enabled"`
	Configured bool          `json:"configured"`
}

// Registry holds the source classification for the process
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.Source]SourceStatus
	live    bool
}

// New classifies every known source from configuration: disabled sources
// are DISABLED, enabled sources with credentials are REAL, the rest fall
// back to MOCK.
func New(cfg config.Config) *Registry {
	r := &Registry{sources: make(map[domain.Source]SourceStatus, len(domain.AllSources))}

	for _, src := range domain.AllSources {
		sc := cfg.Sources[src]
		status := SourceStatus{
			Source:     src,
			Provider:   sc.Provider,
			Enabled:    sc.Enabled,
			Configured: sc.HasCredentials(),
		}
		switch {
		case !sc.Enabled:
			status.Type = SourceDisabled
		case sc.HasCredentials():
			status.Type = SourceReal
		default:
			status.Type = SourceMock
		}
		r.sources[src] = status

		log.Debug().
			Str("source", string(src)).
			Str("type", string(status.Type)).
			Str("provider", sc.Provider).
			Msg("Source classified")
	}

	return r
}

// Classify returns the classification of one source
func (r *Registry) Classify(src domain.Source) SourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sources[src]; ok {
		return s.Type
	}
	return SourceDisabled
}

// Statuses returns every registry row in stable source order
func (r *Registry) Statuses() []SourceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SourceStatus, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// LiveGate reports whether the engine may switch to live mode. Every
// enabled MOCK source is a blocker.
func (r *Registry) LiveGate() (canGoLive bool, blockers []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, src := range domain.AllSources {
		s := r.sources[src]
		if s.Enabled && s.Type == SourceMock {
			blockers = append(blockers, fmt.Sprintf("source %s is enabled but has no real provider configured", src))
		}
	}
	return len(blockers) == 0, blockers
}

// GoLive switches the registry to live mode, failing with every blocker
// listed when the gate is closed.
func (r *Registry) GoLive() error {
	canGoLive, blockers := r.LiveGate()
	if !canGoLive {
		return domain.Ef(domain.KindConfiguration, "cannot go live: %v", blockers)
	}

	r.mu.Lock()
	r.live = true
	r.mu.Unlock()

	log.Info().Msg("Registry switched to live mode")
	return nil
}

// IsLive reports whether live mode is active
func (r *Registry) IsLive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}
