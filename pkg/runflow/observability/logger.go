// Package observability provides logging, metrics and tracing for runflow
// executions.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// Metrics and tracing are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
)

// EnrichLogger adds run context to a logger.
// Returns a new logger with run_id, graph_id, node_id and step fields.
func EnrichLogger(logger *slog.Logger, runID, graphID, nodeID string, step int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("graph_id", graphID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, runID, graphID string) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("run_id", runID),
		slog.String("graph_id", graphID),
	)
}

// LogRunComplete logs a run that settled without failing.
func LogRunComplete(logger *slog.Logger, runID, status string, durationMs float64, steps int) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("run_id", runID),
		slog.String("status", status),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
	)
}

// LogRunError logs a failed or cancelled run.
func LogRunError(logger *slog.Logger, runID, status string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("run_id", runID),
		slog.String("status", status),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogStepCeiling logs a run stopped by the step ceiling.
func LogStepCeiling(logger *slog.Logger, runID string, maxSteps int, pendingNode string) {
	if logger == nil {
		return
	}
	logger.Warn("step ceiling reached",
		slog.String("run_id", runID),
		slog.Int("max_steps", maxSteps),
		slog.String("pending_node", pendingNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogConditionError logs an edge condition that could not be evaluated.
// The run continues on the false branch.
func LogConditionError(logger *slog.Logger, nodeID, expr string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("edge condition failed, taking false branch",
		slog.String("node_id", nodeID),
		slog.String("cond", expr),
		slog.String("error", err.Error()),
	)
}

// LogLedgerError logs a ledger write that failed (non-fatal).
func LogLedgerError(logger *slog.Logger, runID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("ledger write failed",
		slog.String("run_id", runID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}
