// Package tools provides the model-callable workspace tools and the
// executor that runs them for one conversation turn.
package tools

import (
	"log/slog"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/metrics"
	"github.com/raphaelgruber/sprintpilot/internal/store"
	"github.com/raphaelgruber/sprintpilot/internal/workspace"
)

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Store    store.Workspace
	Projects *workspace.ProjectBuilder
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Now      func() time.Time
}

func (d *Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dependencies) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
