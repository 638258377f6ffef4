package logging

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records entries at Debug and above for assertions. Entries are
// recorded as passed, without scrubbing, so AssertNoLeak checks what the
// caller handed to the logger.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger returns a recording logger.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(zapcore.DebugLevel)
	return &TestLogger{
		Logger: &Logger{z: zap.New(core)},
		logs:   logs,
	}
}

// Entries returns everything recorded so far.
func (t *TestLogger) Entries() []observer.LoggedEntry {
	return t.logs.All()
}

func (t *TestLogger) find(level zapcore.Level, msg string) []observer.LoggedEntry {
	var out []observer.LoggedEntry
	for _, e := range t.logs.All() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			out = append(out, e)
		}
	}
	return out
}

// AssertLogged fails tb unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if len(t.find(level, msg)) == 0 {
		tb.Errorf("no %s entry containing %q in %v", level, msg, t.messages())
	}
}

// AssertField fails tb unless an entry with message msg has field key
// whose value formats as want.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.logs.FilterMessage(msg).All() {
		if got, ok := e.ContextMap()[key]; ok {
			if fmt.Sprint(got) == fmt.Sprint(want) {
				return
			}
			tb.Errorf("entry %q: %s = %v, want %v", msg, key, got, want)
			return
		}
	}
	tb.Errorf("entry %q with field %s not found", msg, key)
}

// AssertTenant fails tb unless entry msg carries the tenant scope fields.
func (t *TestLogger) AssertTenant(tb testing.TB, msg, userID, connectionID string) {
	tb.Helper()
	t.AssertField(tb, msg, "tenant.user", userID)
	t.AssertField(tb, msg, "tenant.connection", connectionID)
}

// AssertNoLeak fails tb if any recorded message or field value contains
// secret.
func (t *TestLogger) AssertNoLeak(tb testing.TB, secret string) {
	tb.Helper()
	for _, e := range t.logs.All() {
		if strings.Contains(e.Message, secret) {
			tb.Errorf("entry %q leaks secret in message", e.Message)
		}
		for key, v := range e.ContextMap() {
			if strings.Contains(fmt.Sprint(v), secret) {
				tb.Errorf("entry %q leaks secret in field %s: %v", e.Message, key, v)
			}
		}
	}
}

func (t *TestLogger) messages() []string {
	entries := t.logs.All()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Level.String() + ": " + e.Message
	}
	return out
}
