// Package monitoring aggregates answer outcomes and alerts when the share of
// unresolved answers or LLM fallbacks crosses a threshold.
package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/sells-group/member-qa/internal/model"
)

// maxObservations caps memory when the lookback window is long and traffic high.
const maxObservations = 10000

// Observation is the outcome of one answered question.
type Observation struct {
	Provenance model.Provenance
	Declined   []string // reasons given by engines that did not answer
	TriedLLM   bool
	Stale      bool
	Latency    time.Duration
	At         time.Time
}

// MetricsSnapshot holds a point-in-time view of answer health.
type MetricsSnapshot struct {
	Total          int            `json:"total"`
	Deterministic  int            `json:"deterministic"`
	LLM            int            `json:"llm"`
	Unresolved     int            `json:"unresolved"`
	UnresolvedRate float64        `json:"unresolved_rate"`
	LLMAttempts    int            `json:"llm_attempts"`
	LLMFallbacks   int            `json:"llm_fallbacks"`
	FallbackRate   float64        `json:"fallback_rate"`
	Stale          int            `json:"stale"`
	AvgLatencyMs   float64        `json:"avg_latency_ms"`
	DeclineReasons map[string]int `json:"decline_reasons,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// TopReasons returns up to n decline reasons ordered by count.
func (s *MetricsSnapshot) TopReasons(n int) []string {
	reasons := make([]string, 0, len(s.DeclineReasons))
	for r := range s.DeclineReasons {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if s.DeclineReasons[reasons[i]] != s.DeclineReasons[reasons[j]] {
			return s.DeclineReasons[reasons[i]] > s.DeclineReasons[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	if len(reasons) > n {
		reasons = reasons[:n]
	}
	return reasons
}

// Collector keeps recent observations in memory. Safe for concurrent use.
type Collector struct {
	mu  sync.Mutex
	obs []Observation
	now func() time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{now: time.Now}
}

// Observe records one outcome.
func (c *Collector) Observe(o Observation) {
	if o.At.IsZero() {
		o.At = c.now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs = append(c.obs, o)
	if len(c.obs) > maxObservations {
		c.obs = append(c.obs[:0], c.obs[len(c.obs)-maxObservations:]...)
	}
}

// Collect summarizes observations within the lookback window and drops
// anything older.
func (c *Collector) Collect(lookbackHours int) *MetricsSnapshot {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours:  lookbackHours,
		CollectedAt:    now.UTC(),
		DeclineReasons: map[string]int{},
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	c.mu.Lock()
	kept := c.obs[:0]
	for _, o := range c.obs {
		if o.At.Before(cutoff) {
			continue
		}
		kept = append(kept, o)
	}
	c.obs = kept
	window := append([]Observation(nil), kept...)
	c.mu.Unlock()

	var totalLatency time.Duration
	for _, o := range window {
		snap.Total++
		totalLatency += o.Latency
		switch o.Provenance {
		case model.ProvenanceDeterministic:
			snap.Deterministic++
		case model.ProvenanceLLM:
			snap.LLM++
		case model.ProvenanceUnresolved:
			snap.Unresolved++
		}
		if o.TriedLLM {
			snap.LLMAttempts++
			if o.Provenance != model.ProvenanceLLM {
				snap.LLMFallbacks++
			}
		}
		if o.Stale {
			snap.Stale++
		}
		for _, r := range o.Declined {
			snap.DeclineReasons[r]++
		}
	}

	if snap.Total > 0 {
		snap.UnresolvedRate = float64(snap.Unresolved) / float64(snap.Total)
		snap.AvgLatencyMs = float64(totalLatency.Milliseconds()) / float64(snap.Total)
	}
	if snap.LLMAttempts > 0 {
		snap.FallbackRate = float64(snap.LLMFallbacks) / float64(snap.LLMAttempts)
	}
	return snap
}
