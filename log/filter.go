package log

import "go.uber.org/zap/zapcore"

// DropFieldsCore wraps core so that fields whose key is in keys never reach
// it, whether attached with With or passed at the call site.
func DropFieldsCore(core zapcore.Core, keys ...string) zapcore.Core {
	drop := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key != "" {
			drop[key] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return core
	}
	return &dropCore{Core: core, drop: drop}
}

type dropCore struct {
	zapcore.Core
	drop map[string]struct{}
}

func (c *dropCore) With(fields []zapcore.Field) zapcore.Core {
	return &dropCore{Core: c.Core.With(c.keep(fields)), drop: c.drop}
}

// Check registers the wrapper rather than the inner core so Write filters
// per-entry fields too.
func (c *dropCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *dropCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, c.keep(fields))
}

func (c *dropCore) keep(fields []zapcore.Field) []zapcore.Field {
	kept := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		if _, ok := c.drop[f.Key]; !ok {
			kept = append(kept, f)
		}
	}
	return kept
}
