// Package usage enforces and records monthly token budgets per workspace.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/llm"
	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/store"
)

// ErrLimitExceeded is returned by Check when the month's budget is spent.
var ErrLimitExceeded = errors.New("monthly token limit exceeded")

// Report is the usage readback for one workspace and month.
type Report struct {
	WorkspaceID     string  `json:"workspace_id"`
	Month           string  `json:"month"`
	InputTokens     int64   `json:"input_tokens"`
	OutputTokens    int64   `json:"output_tokens"`
	TotalTokens     int64   `json:"total_tokens"`
	RequestCount    int64   `json:"request_count"`
	Limit           int64   `json:"limit"`
	RemainingTokens int64   `json:"remaining_tokens"`
	PercentUsed     float64 `json:"percent_used"`
}

// Tracker checks budgets before a turn and records usage after it.
// The check is best-effort: concurrent turns on one workspace are not
// serialized, so a month can overshoot by the turns already in flight.
type Tracker struct {
	usage        store.Usage
	settings     store.Settings
	defaultLimit int64
	now          func() time.Time
}

// NewTracker creates a tracker. defaultLimit applies when a workspace has no
// limit of its own.
func NewTracker(u store.Usage, s store.Settings, defaultLimit int64) *Tracker {
	return &Tracker{usage: u, settings: s, defaultLimit: defaultLimit, now: time.Now}
}

// WithClock overrides the time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Limit returns the effective monthly token limit for a workspace.
func (t *Tracker) Limit(ctx context.Context, workspaceID string) (int64, error) {
	if t.settings == nil {
		return t.defaultLimit, nil
	}
	s, err := t.settings.GetSettings(ctx, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("get settings: %w", err)
	}
	if s != nil && s.MonthlyTokenLimit > 0 {
		return s.MonthlyTokenLimit, nil
	}
	return t.defaultLimit, nil
}

// Check returns ErrLimitExceeded when this month's total has reached the limit.
// It has no side effects.
func (t *Tracker) Check(ctx context.Context, workspaceID string) error {
	limit, err := t.Limit(ctx, workspaceID)
	if err != nil {
		return err
	}
	month := models.MonthKey(t.now())
	counter, err := t.usage.GetUsage(ctx, workspaceID, month)
	if err != nil {
		return fmt.Errorf("get usage: %w", err)
	}
	if limit > 0 && counter.TotalTokens() >= limit {
		return fmt.Errorf("%w: %d of %d tokens used in %s", ErrLimitExceeded, counter.TotalTokens(), limit, month)
	}
	return nil
}

// Record adds one turn's tokens and counts one request.
func (t *Tracker) Record(ctx context.Context, workspaceID string, u llm.Usage) (*models.UsageCounter, error) {
	counter, err := t.usage.IncrementUsage(ctx, workspaceID, models.MonthKey(t.now()),
		int64(u.InputTokens), int64(u.OutputTokens))
	if err != nil {
		return nil, fmt.Errorf("increment usage: %w", err)
	}
	return counter, nil
}

// Report returns the current month's usage against the limit.
func (t *Tracker) Report(ctx context.Context, workspaceID string) (*Report, error) {
	limit, err := t.Limit(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	month := models.MonthKey(t.now())
	counter, err := t.usage.GetUsage(ctx, workspaceID, month)
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}

	total := counter.TotalTokens()
	r := &Report{
		WorkspaceID:  workspaceID,
		Month:        month,
		InputTokens:  counter.InputTokens,
		OutputTokens: counter.OutputTokens,
		TotalTokens:  total,
		RequestCount: counter.RequestCount,
		Limit:        limit,
	}
	if limit > 0 {
		r.RemainingTokens = max(limit-total, 0)
		r.PercentUsed = float64(int64(float64(total)/float64(limit)*1000+0.5)) / 10
	}
	return r, nil
}
