// Package logger writes one JSON object per line. Application commands, the
// HTTP server and the postgres store log through it; fields are attached
// with With so every line carries its component and entity ids.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a line.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError

	levelOff
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseLevel accepts debug, info, warn(ing) and error in any case.
// Anything else means info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return LevelInfo
}

// ─────────────────────────────────────────────────────────────────────────────
// Fields
// ─────────────────────────────────────────────────────────────────────────────

// Field is one key/value pair of a line.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field      { return Field{key, value} }
func Int(key string, value int) Field     { return Field{key, value} }
func Int64(key string, value int64) Field { return Field{key, value} }
func Bool(key string, value bool) Field   { return Field{key, value} }
func Any(key string, value any) Field     { return Field{key, value} }

// Err records err.Error() under "error"; a nil error is written as null.
func Err(err error) Field {
	if err == nil {
		return Field{"error", nil}
	}
	return Field{"error", err.Error()}
}

// Duration records d in its String form ("1.5s").
func Duration(key string, d time.Duration) Field { return Field{key, d.String()} }

// Domain fields.
func ChildID(id string) Field       { return String("child_id", id) }
func GuardianID(id string) Field    { return String("guardian_id", id) }
func SubmissionID(id string) Field  { return String("submission_id", id) }
func RewardID(id string) Field      { return String("reward_id", id) }
func MissionID(id string) Field     { return String("mission_id", id) }
func Points(n int) Field            { return Int("points", n) }
func Balance(n int) Field           { return Int("balance", n) }
func Component(name string) Field   { return String("component", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }

// reserved keys are written by the logger itself.
var reserved = map[string]bool{"ts": true, "level": true, "msg": true, "caller": true}

// ─────────────────────────────────────────────────────────────────────────────
// Logger
// ─────────────────────────────────────────────────────────────────────────────

// Options configures New.
type Options struct {
	Output io.Writer // default os.Stdout
	Level  Level

	// AddCaller records file:line of the logging call.
	AddCaller bool
	// CallerSkip skips extra frames for wrappers around Logger.
	CallerSkip int
}

// sink is shared by a logger and everything derived from it with With, so
// lines from different components never interleave.
type sink struct {
	mu  sync.Mutex
	out io.Writer
}

// Logger is safe for concurrent use. With returns a new Logger; the
// receiver is never modified.
type Logger struct {
	sink       *sink
	level      Level
	fields     []Field
	addCaller  bool
	callerSkip int
	now        func() time.Time
}

// New creates a Logger.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Logger{
		sink:       &sink{out: opts.Output},
		level:      opts.Level,
		addCaller:  opts.AddCaller,
		callerSkip: opts.CallerSkip,
		now:        time.Now,
	}
}

// Default logs INFO and above to stdout with callers.
func Default() *Logger {
	return New(Options{Level: LevelInfo, AddCaller: true})
}

// Nop discards everything.
func Nop() *Logger {
	return New(Options{Output: io.Discard, Level: levelOff})
}

// With adds fields to every line of the returned Logger. A later field
// with the same key wins.
func (l *Logger) With(fields ...Field) *Logger {
	child := *l
	child.fields = make([]Field, 0, len(l.fields)+len(fields))
	child.fields = append(child.fields, l.fields...)
	child.fields = append(child.fields, fields...)
	return &child
}

// Enabled reports whether lines at level are written.
func (l *Logger) Enabled(level Level) bool { return level >= l.level }

func (l *Logger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

func (l *Logger) write(level Level, msg string, fields []Field) {
	if !l.Enabled(level) {
		return
	}

	line := make(map[string]any, len(l.fields)+len(fields)+4)
	for _, f := range l.fields {
		line[fieldKey(f.Key)] = f.Value
	}
	for _, f := range fields {
		line[fieldKey(f.Key)] = f.Value
	}
	line["ts"] = l.now().UTC().Format(time.RFC3339Nano)
	line["level"] = level.String()
	line["msg"] = msg
	if l.addCaller {
		// write <- Info/Warn/... <- caller
		if _, file, n, ok := runtime.Caller(2 + l.callerSkip); ok {
			line["caller"] = fmt.Sprintf("%s:%d", file[strings.LastIndex(file, "/")+1:], n)
		}
	}

	data, err := json.Marshal(line)
	if err != nil {
		data, _ = json.Marshal(map[string]any{
			"ts": line["ts"], "level": line["level"], "msg": msg,
			"logger_error": err.Error(),
		})
	}
	data = append(data, '\n')

	l.sink.mu.Lock()
	_, _ = l.sink.out.Write(data)
	l.sink.mu.Unlock()
}

// fieldKey keeps user fields from overwriting the line header.
func fieldKey(k string) string {
	if reserved[k] {
		return "field." + k
	}
	return k
}
