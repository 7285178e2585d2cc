package orchestrator

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/contextdata"
	"github.com/pola2025/zipcheck-sub000/ext"
	"github.com/pola2025/zipcheck-sub000/guard"
	mw "github.com/pola2025/zipcheck-sub000/middleware"
	"github.com/pola2025/zipcheck-sub000/observability"
	"github.com/pola2025/zipcheck-sub000/pricing"
	"github.com/pola2025/zipcheck-sub000/provider"
	"github.com/pola2025/zipcheck-sub000/store"
)

const instrumentationName = "github.com/pola2025/zipcheck-sub000"

// Orchestrator runs submissions against one store and one provider.
type Orchestrator struct {
	store       store.Store
	exec        *guard.Executor
	calc        *pricing.Calculator
	contextData contextdata.Provider
	extensions  *ext.Registry
	mw          mw.Middleware
	mws         []mw.Middleware
	guardOpts   []guard.Option
	config      zipcheck.Config
	logger      *slog.Logger

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the engine defaults.
func WithConfig(c zipcheck.Config) Option {
	return func(o *Orchestrator) { o.config = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(o *Orchestrator) { o.extensions.Register(e) }
}

// WithMiddleware appends middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(o *Orchestrator) { o.mws = append(o.mws, m) }
}

// WithContextProvider sets the supporting-context provider.
func WithContextProvider(p contextdata.Provider) Option {
	return func(o *Orchestrator) { o.contextData = p }
}

// WithCalculator sets the pricing calculator.
func WithCalculator(c *pricing.Calculator) Option {
	return func(o *Orchestrator) { o.calc = c }
}

// WithGuardOptions passes options through to the guarded-call executor.
func WithGuardOptions(opts ...guard.Option) Option {
	return func(o *Orchestrator) { o.guardOpts = append(o.guardOpts, opts...) }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware and the observability extension.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Orchestrator) { o.meterProvider = mp }
}

// New builds an Orchestrator.
func New(st store.Store, p provider.Provider, opts ...Option) (*Orchestrator, error) {
	if st == nil {
		return nil, zipcheck.ErrNoStore
	}
	if p == nil {
		return nil, zipcheck.ErrNoProvider
	}

	o := &Orchestrator{
		store:  st,
		config: zipcheck.DefaultConfig(),
		logger: slog.Default(),
	}
	o.extensions = ext.NewRegistry(o.logger)
	for _, opt := range opts {
		opt(o)
	}
	if o.calc == nil {
		o.calc = pricing.NewCalculator(nil)
	}

	// Register the observability metrics extension.
	if o.meterProvider != nil {
		o.extensions.Register(observability.NewMetricsExtensionWithMeter(
			o.meterProvider.Meter(instrumentationName + "/observability")))
	} else {
		o.extensions.Register(observability.NewMetricsExtension())
	}

	var tracingMw, metricsMw mw.Middleware
	if o.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(o.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}
	if o.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(o.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaults := []mw.Middleware{
		mw.Recover(o.logger),
		tracingMw,
		metricsMw,
		mw.Logging(o.logger),
		mw.Timeout(o.logger, o.config.JobTimeout),
	}
	o.mw = mw.Chain(append(defaults, o.mws...)...)

	guardOpts := append([]guard.Option{guard.WithLogger(o.logger)}, o.guardOpts...)
	o.exec = guard.NewExecutor(p, o.calc, guardOpts...)

	return o, nil
}

// Extensions returns the extension registry.
func (o *Orchestrator) Extensions() *ext.Registry { return o.extensions }

// Config returns the engine defaults in effect.
func (o *Orchestrator) Config() zipcheck.Config { return o.config }

// Store returns the backing store.
func (o *Orchestrator) Store() store.Store { return o.store }
