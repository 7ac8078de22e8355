package sinks

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"hunt-arena/server/logging"
)

// JSON emits newline-delimited structured events through zap.
type JSON struct {
	mu     sync.Mutex
	logger *zap.Logger
	closer io.Closer
}

// NewJSON constructs a JSON sink writing to w.
func NewJSON(w io.Writer) *JSON {
	if w == nil {
		w = io.Discard
	}
	sink := &JSON{logger: newZapLogger(zapcore.AddSync(w))}
	if closer, ok := w.(io.Closer); ok {
		sink.closer = closer
	}
	return sink
}

// NewRotatingFile constructs a JSON sink backed by a size-rotated log file.
func NewRotatingFile(cfg logging.JSONConfig) *JSON {
	return NewJSON(&lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

func newZapLogger(ws zapcore.WriteSyncer) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.MessageKey = "type"
	encoderCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), ws, zapcore.DebugLevel)
	return zap.New(core)
}

// Write satisfies logging.Sink.
func (s *JSON) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := []zap.Field{
		zap.Uint64("tick", event.Tick),
		zap.String("category", event.Category),
		zap.Any("actor", event.Actor),
	}
	if len(event.Targets) > 0 {
		fields = append(fields, zap.Any("targets", event.Targets))
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}
	if len(event.Extra) > 0 {
		fields = append(fields, zap.Any("extra", event.Extra))
	}

	entry := s.logger.Check(toZapLevel(event.Severity), string(event.Type))
	if entry == nil {
		return nil
	}
	if !event.Time.IsZero() {
		entry.Time = event.Time
	}
	entry.Write(fields...)
	return nil
}

// Close flushes buffers and releases the underlying file.
func (s *JSON) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.logger.Sync()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func toZapLevel(sev logging.Severity) zapcore.Level {
	switch sev {
	case logging.SeverityDebug:
		return zapcore.DebugLevel
	case logging.SeverityWarn:
		return zapcore.WarnLevel
	case logging.SeverityError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
