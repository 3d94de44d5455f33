package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEvalErrorLog_Modes(t *testing.T) {
	defer SetEvalErrorLoggingMode(PrintErrors)
	defer ClearEvalErrorLog()

	x := NewVar("x", 2, 0, 10)
	f := product("f", x)
	f.Core().Value(nil) // warm server caches for the value string

	t.Run("count_mode", func(t *testing.T) {
		ClearEvalErrorLog()
		SetEvalErrorLoggingMode(CountErrors)

		LogEvalError(f, "bad value")
		LogEvalError(f, "bad value")
		assert.Equal(t, 2, NumEvalErrors())
		assert.Empty(t, EvalErrors(), "count mode stores nothing")

		ClearEvalErrorLog()
		assert.Zero(t, NumEvalErrors())
	})

	t.Run("collect_mode", func(t *testing.T) {
		ClearEvalErrorLog()
		SetEvalErrorLoggingMode(CollectErrors)

		LogEvalError(f, "first")
		LogEvalError(f, "second")

		entries := EvalErrors()
		require.Len(t, entries["f"], 2)
		assert.Equal(t, "first", entries["f"][0].Message)
		assert.Equal(t, "x=2", entries["f"][0].ServerValues)
		assert.Equal(t, []string{"f"}, EvalErrorOrigins())
	})

	t.Run("ignore_mode", func(t *testing.T) {
		ClearEvalErrorLog()
		SetEvalErrorLoggingMode(Ignore)

		LogEvalError(f, "dropped")
		assert.Zero(t, NumEvalErrors())
		assert.Empty(t, EvalErrors())
	})

	t.Run("print_mode_goes_through_logger", func(t *testing.T) {
		ClearEvalErrorLog()
		SetEvalErrorLoggingMode(PrintErrors)

		core, logs := observer.New(zap.ErrorLevel)
		SetLogger(zap.New(core))
		defer SetLogger(nil)

		LogEvalError(f, "printed")
		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "evaluation error", entry.Message)
		assert.Equal(t, "f", entry.ContextMap()["origin"])
	})
}

func TestEvalErrorLog_CollectionCap(t *testing.T) {
	defer SetEvalErrorLoggingMode(PrintErrors)
	ClearEvalErrorLog()
	SetEvalErrorLoggingMode(CollectErrors)
	defer ClearEvalErrorLog()

	x := NewVar("x", 0, 0, 1)
	f := product("capped", x)
	for i := 0; i < maxCollectedPerOrigin+10; i++ {
		LogEvalError(f, "overflow")
	}
	assert.Len(t, EvalErrors()["capped"], maxCollectedPerOrigin)
	assert.Equal(t, maxCollectedPerOrigin+10, NumEvalErrors())
}

func TestEvalErrorLog_ReentrancyGuard(t *testing.T) {
	defer SetEvalErrorLoggingMode(PrintErrors)
	ClearEvalErrorLog()
	SetEvalErrorLoggingMode(CollectErrors)
	defer ClearEvalErrorLog()

	x := NewVar("x", 0, 0, 1)
	f := product("reentrant", x)

	evalErrorLog.inLog = true
	LogEvalError(f, "nested")
	evalErrorLog.inLog = false

	assert.Empty(t, EvalErrors(), "nested log calls are suppressed")

	LogEvalError(f, "after")
	assert.Len(t, EvalErrors()["reentrant"], 1)
}
