package slogobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/llmbridge/bridge/providers/observability"
)

// Observer routes spans, metrics, and log events through one slog.Logger.
type Observer struct {
	logger *slog.Logger

	mu         sync.Mutex
	counters   map[string]*counter
	histograms map[string]*histogram
}

var _ observability.Provider = (*Observer)(nil)

// New builds an observer. Without options it writes text records to stdout at
// the level named by BRIDGE_LOG_LEVEL (INFO when unset); BRIDGE_LOG_FORMAT=json
// selects JSON records.
func New(opts ...Option) *Observer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if logger == nil {
		hopts := &slog.HandlerOptions{Level: cfg.level, ReplaceAttr: nameTraceLevel}
		if cfg.json {
			logger = slog.New(slog.NewJSONHandler(cfg.output, hopts))
		} else {
			logger = slog.New(slog.NewTextHandler(cfg.output, hopts))
		}
	}

	return &Observer{
		logger:     logger,
		counters:   make(map[string]*counter),
		histograms: make(map[string]*histogram),
	}
}

// nameTraceLevel renders records below DEBUG as level=TRACE instead of the
// stdlib's DEBUG-4.
func nameTraceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level < slog.LevelDebug {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// StartSpan opens a span. The start is logged at TRACE; End logs the span
// name, its duration, and every attribute accumulated along the way.
func (o *Observer) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	o.logger.LogAttrs(ctx, LevelTrace, "span start",
		append([]slog.Attr{slog.String("span", name)}, toSlog(attrs)...)...)
	return ctx, &span{name: name, start: time.Now(), logger: o.logger, attrs: attrs}
}

type span struct {
	name   string
	start  time.Time
	logger *slog.Logger

	mu    sync.Mutex
	attrs []observability.Attribute
}

func (s *span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	logAttrs := []slog.Attr{
		slog.String("span", s.name),
		slog.Duration(observability.AttrDuration, time.Since(s.start)),
	}
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "span end",
		append(logAttrs, toSlog(s.attrs)...)...)
}

func (s *span) SetAttributes(attrs ...observability.Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, attrs...)
}

func (s *span) SetStatus(code observability.StatusCode, description string) {
	name := "unset"
	switch code {
	case observability.StatusOK:
		name = "ok"
	case observability.StatusError:
		name = "error"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, observability.String(observability.AttrStatus, name))
	if description != "" {
		s.attrs = append(s.attrs, observability.String(observability.AttrStatusDescription, description))
	}
}

func (s *span) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, observability.Error(err))
	s.mu.Unlock()
	s.logger.LogAttrs(context.Background(), slog.LevelError, "span error",
		slog.String("span", s.name),
		slog.String(observability.AttrError, err.Error()),
	)
}

func (s *span) AddEvent(name string, attrs ...observability.Attribute) {
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "span event",
		append([]slog.Attr{
			slog.String("span", s.name),
			slog.String("event", name),
		}, toSlog(attrs)...)...)
}

// Counter returns the named cumulative counter. The same name always yields
// the same instance.
func (o *Observer) Counter(name string) observability.Counter {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.counters[name]
	if !ok {
		c = &counter{name: name, logger: o.logger}
		o.counters[name] = c
	}
	return c
}

// Histogram returns the named histogram. The same name always yields the same
// instance.
func (o *Observer) Histogram(name string) observability.Histogram {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.histograms[name]
	if !ok {
		h = &histogram{name: name, logger: o.logger}
		o.histograms[name] = h
	}
	return h
}

type counter struct {
	name   string
	logger *slog.Logger

	mu    sync.Mutex
	total int64
}

func (c *counter) Add(ctx context.Context, value int64, attrs ...observability.Attribute) {
	c.mu.Lock()
	c.total += value
	total := c.total
	c.mu.Unlock()

	c.logger.LogAttrs(ctx, slog.LevelDebug, "counter",
		append([]slog.Attr{
			slog.String("metric", c.name),
			slog.Int64("delta", value),
			slog.Int64("total", total),
		}, toSlog(attrs)...)...)
}

type histogram struct {
	name   string
	logger *slog.Logger

	mu    sync.Mutex
	count int64
	sum   float64
}

func (h *histogram) Record(ctx context.Context, value float64, attrs ...observability.Attribute) {
	h.mu.Lock()
	h.count++
	h.sum += value
	count := h.count
	h.mu.Unlock()

	h.logger.LogAttrs(ctx, slog.LevelDebug, "histogram",
		append([]slog.Attr{
			slog.String("metric", h.name),
			slog.Float64("value", value),
			slog.Int64("count", count),
		}, toSlog(attrs)...)...)
}

// Trace logs below DEBUG; see [LevelTrace].
func (o *Observer) Trace(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, LevelTrace, msg, toSlog(attrs)...)
}

func (o *Observer) Debug(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelDebug, msg, toSlog(attrs)...)
}

func (o *Observer) Info(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelInfo, msg, toSlog(attrs)...)
}

func (o *Observer) Warn(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelWarn, msg, toSlog(attrs)...)
}

func (o *Observer) Error(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelError, msg, toSlog(attrs)...)
}

func toSlog(attrs []observability.Attribute) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, slog.Any(attr.Key, attr.Value))
	}
	return out
}
