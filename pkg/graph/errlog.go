package graph

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrorLoggingMode selects how recoverable evaluation errors are handled.
// Evaluation errors occur in very large numbers during fits, so they are
// routed through this dedicated channel rather than the general logger.
type ErrorLoggingMode int

const (
	// PrintErrors reports each error immediately through the configured
	// logger. Default mode.
	PrintErrors ErrorLoggingMode = iota
	// CollectErrors stores structured entries per originating node for
	// later inspection.
	CollectErrors
	// CountErrors only increments a counter.
	CountErrors
	// Ignore drops evaluation errors entirely.
	Ignore
)

// EvalError is one recorded evaluation error.
type EvalError struct {
	Message      string
	ServerValues string
}

// maxCollectedPerOrigin caps the per-node collected list so a runaway fit
// cannot grow the log without bound. The oldest entry is dropped first.
const maxCollectedPerOrigin = 2048

// evalErrorLog is the process-wide evaluation error state. The mutex keeps
// it safe when clones of a graph evaluate on several goroutines; the inLog
// flag suppresses reentrant logging from within the reporting path itself.
var evalErrorLog = struct {
	mu      sync.Mutex
	mode    ErrorLoggingMode
	count   int
	entries map[string][]EvalError
	order   []string
	inLog   bool
	logger  *zap.Logger
}{
	entries: make(map[string][]EvalError),
	logger:  zap.NewNop(),
}

// SetLogger installs the logger used by PrintErrors mode. A nil logger
// resets to a no-op.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	evalErrorLog.mu.Lock()
	defer evalErrorLog.mu.Unlock()
	evalErrorLog.logger = l
}

// SetEvalErrorLoggingMode switches the process-wide error handling mode.
func SetEvalErrorLoggingMode(m ErrorLoggingMode) {
	evalErrorLog.mu.Lock()
	defer evalErrorLog.mu.Unlock()
	evalErrorLog.mode = m
}

// EvalErrorLoggingMode returns the current mode.
func EvalErrorLoggingMode() ErrorLoggingMode {
	evalErrorLog.mu.Lock()
	defer evalErrorLog.mu.Unlock()
	return evalErrorLog.mode
}

// LogEvalError records a recoverable evaluation error attributed to origin.
// Depending on the mode the error is printed, counted, collected or dropped.
// Evaluation always continues after logging; an error here never aborts a
// computation.
func LogEvalError(origin Real, message string) {
	evalErrorLog.mu.Lock()
	defer evalErrorLog.mu.Unlock()

	switch evalErrorLog.mode {
	case Ignore:
		return
	case CountErrors:
		evalErrorLog.count++
		return
	}

	if evalErrorLog.inLog {
		return
	}
	evalErrorLog.inLog = true
	defer func() { evalErrorLog.inLog = false }()

	ee := EvalError{
		Message:      message,
		ServerValues: serverValueString(origin),
	}
	name := "<unknown>"
	if origin != nil {
		name = origin.Name()
	}

	switch evalErrorLog.mode {
	case PrintErrors:
		evalErrorLog.logger.Error("evaluation error",
			zap.String("origin", name),
			zap.String("message", ee.Message),
			zap.String("servers", ee.ServerValues),
		)
	case CollectErrors:
		list, known := evalErrorLog.entries[name]
		if !known {
			evalErrorLog.order = append(evalErrorLog.order, name)
		}
		if len(list) >= maxCollectedPerOrigin {
			list = list[1:]
		}
		evalErrorLog.entries[name] = append(list, ee)
		evalErrorLog.count++
	}
}

// serverValueString renders "name=value" pairs for the origin's servers,
// captured from their caches without triggering recomputation.
func serverValueString(origin Real) string {
	if origin == nil {
		return ""
	}
	var b strings.Builder
	for i, s := range origin.Core().servers {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%g", s.Name(), s.Core().CachedValue())
	}
	return b.String()
}

// NumEvalErrors returns the total number of errors seen since the last
// clear, in CountErrors and CollectErrors modes.
func NumEvalErrors() int {
	evalErrorLog.mu.Lock()
	defer evalErrorLog.mu.Unlock()
	return evalErrorLog.count
}

// EvalErrors returns the collected entries keyed by originating node name.
// Only populated in CollectErrors mode. The returned map is a shallow copy.
func EvalErrors() map[string][]EvalError {
	evalErrorLog.mu.Lock()
	defer evalErrorLog.mu.Unlock()
	out := make(map[string][]EvalError, len(evalErrorLog.entries))
	for k, v := range evalErrorLog.entries {
		out[k] = v
	}
	return out
}

// EvalErrorOrigins returns the originating node names in first-seen order.
func EvalErrorOrigins() []string {
	evalErrorLog.mu.Lock()
	defer evalErrorLog.mu.Unlock()
	out := make([]string, len(evalErrorLog.order))
	copy(out, evalErrorLog.order)
	return out
}

// ClearEvalErrorLog resets the counter and drops all collected entries.
func ClearEvalErrorLog() {
	evalErrorLog.mu.Lock()
	defer evalErrorLog.mu.Unlock()
	evalErrorLog.count = 0
	evalErrorLog.entries = make(map[string][]EvalError)
	evalErrorLog.order = nil
}
