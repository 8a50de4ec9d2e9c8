// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"sort"
	"sync"
	"time"
)

// maxSlowest is how many of the slowest sends are kept.
const maxSlowest = 5

// =============================================================================
// USAGE TRACKER
// =============================================================================

// SendRecord describes one finished send. It carries no message content.
type SendRecord struct {
	SessionID string        `json:"session_id"`
	Model     string        `json:"model"`
	Outcome   string        `json:"outcome"` // OutcomeOK or an error kind
	Fragments int           `json:"fragments"`
	Noise     int           `json:"noise"`
	TTFT      time.Duration `json:"ttft"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// ModelUsage aggregates sends for one model.
type ModelUsage struct {
	Sends     int           `json:"sends"`
	Failures  int           `json:"failures"`
	Fragments int           `json:"fragments"`
	Noise     int           `json:"noise"`
	TotalTime time.Duration `json:"total_time"`
	TotalTTFT time.Duration `json:"total_ttft"`
}

// AvgTTFT returns the mean time to first fragment over successful sends.
func (u ModelUsage) AvgTTFT() time.Duration {
	ok := u.Sends - u.Failures
	if ok <= 0 {
		return 0
	}
	return u.TotalTTFT / time.Duration(ok)
}

// UsageSummary is a snapshot of a UsageTracker.
type UsageSummary struct {
	Since    time.Time             `json:"since"`
	Sends    int                   `json:"sends"`
	Failures int                   `json:"failures"`
	Outcomes map[string]int        `json:"outcomes"`
	ByModel  map[string]ModelUsage `json:"by_model"`
	Slowest  []SendRecord          `json:"slowest"`
}

// UsageTracker aggregates send records for the running process.
type UsageTracker struct {
	mu       sync.RWMutex
	since    time.Time
	outcomes map[string]int
	byModel  map[string]*ModelUsage
	slowest  []SendRecord
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		since:    time.Now(),
		outcomes: make(map[string]int),
		byModel:  make(map[string]*ModelUsage),
	}
}

// Record adds a finished send.
func (t *UsageTracker) Record(rec SendRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.outcomes[rec.Outcome]++

	u := t.byModel[rec.Model]
	if u == nil {
		u = &ModelUsage{}
		t.byModel[rec.Model] = u
	}
	u.Sends++
	u.Fragments += rec.Fragments
	u.Noise += rec.Noise
	u.TotalTime += rec.Duration
	if rec.Outcome != OutcomeOK {
		u.Failures++
		return
	}
	u.TotalTTFT += rec.TTFT

	t.slowest = append(t.slowest, rec)
	sort.SliceStable(t.slowest, func(i, j int) bool {
		return t.slowest[i].Duration > t.slowest[j].Duration
	})
	if len(t.slowest) > maxSlowest {
		t.slowest = t.slowest[:maxSlowest]
	}
}

// Summary returns a copy of the current totals.
func (t *UsageTracker) Summary() UsageSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sum := UsageSummary{
		Since:    t.since,
		Outcomes: make(map[string]int, len(t.outcomes)),
		ByModel:  make(map[string]ModelUsage, len(t.byModel)),
		Slowest:  append([]SendRecord(nil), t.slowest...),
	}
	for k, n := range t.outcomes {
		sum.Outcomes[k] = n
		sum.Sends += n
		if k != OutcomeOK {
			sum.Failures += n
		}
	}
	for m, u := range t.byModel {
		sum.ByModel[m] = *u
	}
	return sum
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder feeds send records to Prometheus and an optional UsageTracker.
type Recorder struct {
	usage *UsageTracker
}

// NewRecorder creates a Recorder. usage may be nil.
func NewRecorder(usage *UsageTracker) *Recorder {
	return &Recorder{usage: usage}
}

// SendStarted marks a send as streaming.
func (r *Recorder) SendStarted() {
	SendStarted()
}

// RecordSend records a finished send.
func (r *Recorder) RecordSend(rec SendRecord) {
	SendFinished()
	RecordSendMetrics(rec.Model, rec.Outcome, rec.Fragments, rec.TTFT, rec.Duration)
	if r.usage != nil {
		r.usage.Record(rec)
	}
}

// Usage returns the tracker, or nil.
func (r *Recorder) Usage() *UsageTracker {
	return r.usage
}
