package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/sprintpilot/internal/llm"
	"github.com/raphaelgruber/sprintpilot/internal/metrics"
)

// maxParallelCalls bounds concurrent tool executions within one round.
const maxParallelCalls = 8

// Outcome is the result of one tool call, ready to feed back to the model.
type Outcome struct {
	Call    llm.ToolCall
	Content string
	Success bool
	// ProjectID is set when the result identifies a project.
	ProjectID string
	Duration  time.Duration
}

// Executor runs tool calls for a single workspace.
// Reads run in parallel; writes hold writeMu so same-round writes apply one at a time.
type Executor struct {
	registry    *Registry
	workspaceID string
	logger      *slog.Logger
	metrics     *metrics.Collector
	writeMu     sync.Mutex
}

// NewExecutor binds the registry to a workspace.
func NewExecutor(reg *Registry, workspaceID string, logger *slog.Logger, m *metrics.Collector) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: reg, workspaceID: workspaceID, logger: logger, metrics: m}
}

// ExecuteAll runs calls concurrently and returns outcomes in request order.
// Individual failures are encoded in the outcomes, never returned.
func (e *Executor) ExecuteAll(ctx context.Context, calls []llm.ToolCall) []Outcome {
	out := make([]Outcome, len(calls))
	var g errgroup.Group
	g.SetLimit(maxParallelCalls)
	for i, call := range calls {
		g.Go(func() error {
			out[i] = e.Execute(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Execute runs one call.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) (outcome Outcome) {
	start := time.Now()
	outcome = Outcome{Call: call}
	logger := e.logger.With("tool", call.Name, "workspace", e.workspaceID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tool panicked", "panic", r)
			outcome.Content = ErrorResult("Tool failed unexpectedly", "")
			outcome.Success = false
		}
		outcome.Duration = time.Since(start)
		e.metrics.RecordToolCall(call.Name, outcome.Duration, outcome.Success)
		logger.Debug("tool call finished", "success", outcome.Success, "duration_ms", outcome.Duration.Milliseconds())
	}()

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		outcome.Content = ErrorResult(fmt.Sprintf("Unknown tool %q", call.Name),
			"Available tools: "+strings.Join(e.registry.Names(), ", "))
		return outcome
	}

	args, stripped := stripWorkspaceID(call.Arguments)
	if stripped {
		logger.Warn("ignoring model-supplied workspace id")
	}

	if tool.Write {
		e.writeMu.Lock()
		defer e.writeMu.Unlock()
	}

	result, err := tool.run(ctx, e.workspaceID, args)
	if err != nil {
		msg, known := errorMessage(err)
		if !known {
			logger.Warn("tool failed", "error", err)
		}
		var te *Error
		if errors.As(err, &te) {
			outcome.ProjectID = te.ProjectID
		}
		outcome.Content = ErrorResult(msg, "")
		return outcome
	}

	if r, ok := result.(projectRevealer); ok {
		outcome.ProjectID = r.RevealedProjectID()
	}
	outcome.Content = SuccessResult(result)
	outcome.Success = true
	return outcome
}

// stripWorkspaceID removes a top-level "workspace_id" argument.
func stripWorkspaceID(args json.RawMessage) (json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(args, &fields); err != nil {
		return args, false
	}
	if _, ok := fields["workspace_id"]; !ok {
		return args, false
	}
	delete(fields, "workspace_id")
	out, err := json.Marshal(fields)
	if err != nil {
		return args, false
	}
	return out, true
}
