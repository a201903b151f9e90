package bot

import "go.uber.org/zap"

type ErrorReporter interface {
	Report(err error, context map[string]string)
}

type noopReporter struct{}

func (n *noopReporter) Report(err error, context map[string]string) {}

// LogReporter reports errors to a zap logger at warn level.
type LogReporter struct {
	Logger *zap.Logger
}

func (r *LogReporter) Report(err error, context map[string]string) {
	if r.Logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(context)+1)
	fields = append(fields, zap.Error(err))
	for k, v := range context {
		fields = append(fields, zap.String(k, v))
	}
	r.Logger.Warn("reported error", fields...)
}
