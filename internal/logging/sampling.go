package logging

import (
	"go.uber.org/zap/zapcore"
)

// sampled wraps core so entries below Error are sampled by level and message.
// Error and above always pass.
func sampled(core zapcore.Core, s Sampling) zapcore.Core {
	if s.First <= 0 {
		return core
	}
	errorsOnly, err := zapcore.NewIncreaseLevelCore(core, zapcore.ErrorLevel)
	if err != nil {
		// core only accepts levels above Error.
		return core
	}
	below := belowCore{Core: core, limit: zapcore.ErrorLevel}
	return zapcore.NewTee(
		errorsOnly,
		zapcore.NewSamplerWithOptions(below, s.Tick, s.First, s.Thereafter),
	)
}

// belowCore drops entries at or above limit.
type belowCore struct {
	zapcore.Core
	limit zapcore.Level
}

func (c belowCore) Enabled(lvl zapcore.Level) bool {
	return lvl < c.limit && c.Core.Enabled(lvl)
}

func (c belowCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level >= c.limit {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c belowCore) With(fs []zapcore.Field) zapcore.Core {
	return belowCore{Core: c.Core.With(fs), limit: c.limit}
}
