package models

import "time"

// MonthKeyLayout formats the calendar-month key of a usage counter.
const MonthKeyLayout = "2006-01"

// MonthKey returns the UTC calendar-month key for t.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthKeyLayout)
}

// UsageCounter tracks token consumption for one workspace and month.
// Counters only ever increase.
type UsageCounter struct {
	WorkspaceID  string `json:"workspace_id"`
	Month        string `json:"month"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	RequestCount int64  `json:"request_count"`
}

// TotalTokens returns input plus output tokens.
func (u UsageCounter) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// Settings holds per-workspace assistant preferences.
type Settings struct {
	WorkspaceID       string    `json:"workspace_id"`
	Enabled           bool      `json:"enabled"`
	Provider          string    `json:"provider,omitempty"`
	Model             string    `json:"model,omitempty"`
	MonthlyTokenLimit int64     `json:"monthly_token_limit"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SettingsUpdate holds optional settings fields. Nil fields are left unchanged.
type SettingsUpdate struct {
	Enabled           *bool   `json:"enabled,omitempty"`
	Provider          *string `json:"provider,omitempty"`
	Model             *string `json:"model,omitempty"`
	MonthlyTokenLimit *int64  `json:"monthly_token_limit,omitempty"`
}

// Apply merges u into s.
func (u SettingsUpdate) Apply(s *Settings) {
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
	}
	if u.Provider != nil {
		s.Provider = *u.Provider
	}
	if u.Model != nil {
		s.Model = *u.Model
	}
	if u.MonthlyTokenLimit != nil {
		s.MonthlyTokenLimit = *u.MonthlyTokenLimit
	}
}
