// Package metrics collects runtime statistics for chat turns: in-memory
// aggregates served by the stats endpoint plus a Prometheus registry.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Provider operations.
const (
	OpChatRound = "chat_round"
	OpSummarize = "summarize"
)

// TimingSnapshot summarizes the durations of one kind of call.
type TimingSnapshot struct {
	Count   int64   `json:"count"`
	TotalMs int64   `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MinMs   int64   `json:"min_ms"`
	MaxMs   int64   `json:"max_ms"`
	LastMs  int64   `json:"last_ms"`
	LastAt  string  `json:"last_at,omitempty"`
}

// ProviderSnapshot adds token totals to the timing of a provider operation.
type ProviderSnapshot struct {
	TimingSnapshot
	InputTokens    int64   `json:"input_tokens"`
	OutputTokens   int64   `json:"output_tokens"`
	AvgInputTokens float64 `json:"avg_input_tokens"`
	MaxInputTokens int64   `json:"max_input_tokens"`
}

// ToolSnapshot is the breakdown for one assistant tool.
type ToolSnapshot struct {
	Name     string `json:"name"`
	Failures int64  `json:"failures"`
	TimingSnapshot
}

// Snapshot represents the full runtime statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	// Turns counts finished turns by outcome or error category.
	Turns     map[string]int64  `json:"turns"`
	ChatRound *ProviderSnapshot `json:"chat_round,omitempty"`
	Summarize *ProviderSnapshot `json:"summarize,omitempty"`
	// Tools is ordered by call count, busiest first.
	Tools   []ToolSnapshot  `json:"tools"`
	DBQuery *TimingSnapshot `json:"db_query,omitempty"`
}

// timing accumulates call durations.
type timing struct {
	count    int64
	total    time.Duration
	min, max time.Duration
	last     time.Duration
	lastAt   time.Time
}

func (t *timing) add(d time.Duration, at time.Time) {
	if t.count == 0 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.count++
	t.total += d
	t.last, t.lastAt = d, at
}

func (t *timing) snapshot() TimingSnapshot {
	if t.count == 0 {
		return TimingSnapshot{}
	}
	return TimingSnapshot{
		Count:   t.count,
		TotalMs: t.total.Milliseconds(),
		AvgMs:   float64(t.total.Milliseconds()) / float64(t.count),
		MinMs:   t.min.Milliseconds(),
		MaxMs:   t.max.Milliseconds(),
		LastMs:  t.last.Milliseconds(),
		LastAt:  t.lastAt.UTC().Format(time.RFC3339),
	}
}

type providerStats struct {
	timing
	input, output, maxInput int64
}

type toolStats struct {
	timing
	failures int64
}

// Collector aggregates in-memory runtime statistics and mirrors them into
// Prometheus. All methods are thread-safe and safe on a nil receiver.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	now       func() time.Time
	turns     map[string]int64
	providers map[string]*providerStats
	tools     map[string]*toolStats
	db        timing
	prom      *promMetrics
}

// NewCollector creates a new metrics collector with its own Prometheus registry.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		now:       time.Now,
		turns:     make(map[string]int64),
		providers: make(map[string]*providerStats),
		tools:     make(map[string]*toolStats),
		prom:      newPromMetrics(),
	}
}

// RecordLLMUsage records timing and token usage for a provider call.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.prom.observeProvider(op, duration, inputTokens, outputTokens)

	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.providers[op]
	if !ok {
		p = &providerStats{}
		c.providers[op] = p
	}
	p.add(duration, c.now())
	p.input += inputTokens
	p.output += outputTokens
	if inputTokens > p.maxInput {
		p.maxInput = inputTokens
	}
}

// RecordToolCall records one tool execution and whether it succeeded.
func (c *Collector) RecordToolCall(tool string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	c.prom.observeTool(tool, duration, success)

	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tools[tool]
	if !ok {
		t = &toolStats{}
		c.tools[tool] = t
	}
	t.add(duration, c.now())
	if !success {
		t.failures++
	}
}

// RecordTurn counts a finished turn under its outcome label
// ("completed", "round_limit", or an error category).
func (c *Collector) RecordTurn(outcome string) {
	if c == nil {
		return
	}
	c.prom.observeTurn(outcome)

	c.mu.Lock()
	c.turns[outcome]++
	c.mu.Unlock()
}

// ObserveDB records a store operation.
func (c *Collector) ObserveDB(duration time.Duration) {
	if c == nil {
		return
	}
	c.prom.observeDB(duration)

	c.mu.Lock()
	c.db.add(duration, c.now())
	c.mu.Unlock()
}

func (c *Collector) providerSnapshot(op string) *ProviderSnapshot {
	p, ok := c.providers[op]
	if !ok || p.count == 0 {
		return nil
	}
	return &ProviderSnapshot{
		TimingSnapshot: p.snapshot(),
		InputTokens:    p.input,
		OutputTokens:   p.output,
		AvgInputTokens: float64(p.input) / float64(p.count),
		MaxInputTokens: p.maxInput,
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{Turns: map[string]int64{}, Tools: []ToolSnapshot{}}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Turns:         make(map[string]int64, len(c.turns)),
		ChatRound:     c.providerSnapshot(OpChatRound),
		Summarize:     c.providerSnapshot(OpSummarize),
		Tools:         make([]ToolSnapshot, 0, len(c.tools)),
	}
	for outcome, n := range c.turns {
		snap.Turns[outcome] = n
	}
	for name, t := range c.tools {
		snap.Tools = append(snap.Tools, ToolSnapshot{Name: name, Failures: t.failures, TimingSnapshot: t.snapshot()})
	}
	sort.Slice(snap.Tools, func(i, j int) bool {
		if snap.Tools[i].Count != snap.Tools[j].Count {
			return snap.Tools[i].Count > snap.Tools[j].Count
		}
		return snap.Tools[i].Name < snap.Tools[j].Name
	})
	if c.db.count > 0 {
		db := c.db.snapshot()
		snap.DBQuery = &db
	}
	return snap
}
