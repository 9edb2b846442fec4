package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestLogger_WritesFlatJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelDebug, AddCaller: true})
	l.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }

	l.With(Component("redeem_reward"), ChildID("c-1")).
		Info("reward redeemed", Points(50), Balance(25), Err(errors.New("boom")), String("msg", "shadow"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "2026-03-14T10:00:00Z", line["ts"])
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "reward redeemed", line["msg"])
	assert.Equal(t, "shadow", line["field.msg"])
	assert.Equal(t, "redeem_reward", line["component"])
	assert.Equal(t, "c-1", line["child_id"])
	assert.EqualValues(t, 50, line["points"])
	assert.Equal(t, "boom", line["error"])
	assert.Contains(t, line["caller"], "logger_test.go:")
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelWarn})

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Error("shown")

	assert.Len(t, decodeLines(t, &buf), 2)
	assert.False(t, Nop().Enabled(LevelError))
}

func TestLogger_WithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Options{Output: &buf})
	_ = parent.With(String("a", "1"))
	parent.Info("plain")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "a")
}

func TestLogger_ConcurrentWritesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	root := New(Options{Output: &buf})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l := root.With(Int("worker", i))
			for j := 0; j < 50; j++ {
				l.Info("tick")
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, decodeLines(t, &buf), 400)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("loud"))
}
