// Package otelzerolog forwards zerolog JSON events to an OpenTelemetry logger.
package otelzerolog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

const instrumentationName = "github.com/kalbasit/distlock/pkg/otelzerolog"

// OtelWriter implements zerolog.LevelWriter by emitting OpenTelemetry log records.
type OtelWriter struct {
	logger log.Logger
}

// NewOtelWriter returns a writer emitting to lp. A nil lp selects the global
// logger provider, which forwards to whatever provider is installed later.
func NewOtelWriter(lp log.LoggerProvider) *OtelWriter {
	if lp == nil {
		lp = global.GetLoggerProvider()
	}

	return &OtelWriter{logger: lp.Logger(instrumentationName)}
}

// Write implements io.Writer.
func (w *OtelWriter) Write(p []byte) (int, error) {
	var logEntry map[string]any
	if err := json.Unmarshal(p, &logEntry); err != nil {
		return 0, err
	}

	var rec log.Record

	level := zerolog.NoLevel

	if levelStr, ok := logEntry[zerolog.LevelFieldName].(string); ok {
		if l, err := zerolog.ParseLevel(levelStr); err == nil {
			level = l
		}

		delete(logEntry, zerolog.LevelFieldName)
	}

	rec.SetSeverity(convertLevel(level))
	rec.SetSeverityText(level.String())

	if msg, ok := logEntry[zerolog.MessageFieldName].(string); ok {
		rec.SetBody(log.StringValue(msg))

		delete(logEntry, zerolog.MessageFieldName)
	}

	rec.AddAttributes(getKeyValueForMap(logEntry)...)

	w.logger.Emit(context.Background(), rec)

	return len(p), nil
}

// WriteLevel implements zerolog.LevelWriter.
func (w *OtelWriter) WriteLevel(_ zerolog.Level, p []byte) (int, error) {
	return w.Write(p)
}

func convertLevel(level zerolog.Level) log.Severity {
	switch level {
	case zerolog.TraceLevel:
		return log.SeverityTrace
	case zerolog.DebugLevel:
		return log.SeverityDebug
	case zerolog.InfoLevel:
		return log.SeverityInfo
	case zerolog.WarnLevel:
		return log.SeverityWarn
	case zerolog.ErrorLevel:
		return log.SeverityError
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return log.SeverityFatal
	case zerolog.NoLevel, zerolog.Disabled:
		return log.SeverityInfo
	default:
		return log.SeverityInfo
	}
}

func getKeyValueForMap(m map[string]any) []log.KeyValue {
	kvs := make([]log.KeyValue, 0, len(m))

	for k, v := range m {
		if v == nil {
			continue
		}

		kvs = append(kvs, log.KeyValue{Key: k, Value: getValue(v)})
	}

	return kvs
}

func getValue(v any) log.Value {
	switch val := v.(type) {
	case bool:
		return log.BoolValue(val)
	case float64:
		if ival := int64(val); float64(ival) == val {
			return log.Int64Value(ival)
		}

		return log.Float64Value(val)
	case string:
		return log.StringValue(val)
	case []any:
		vs := make([]log.Value, 0, len(val))

		for _, item := range val {
			if item != nil {
				vs = append(vs, getValue(item))
			}
		}

		return log.SliceValue(vs...)
	case map[string]any:
		return log.MapValue(getKeyValueForMap(val)...)
	default:
		return log.StringValue(fmt.Sprint(val))
	}
}
