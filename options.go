package gravix

import (
	"log/slog"

	"github.com/hupe1980/gravix/internal/pagestore"
	"github.com/hupe1980/gravix/internal/resource"
)

type options struct {
	hasher               Hasher
	initialBuckets       int
	pageSize             int
	compression          pagestore.Compression
	compressionThreshold int
	offHeap              bool
	resourceConfig       *resource.Config
	metricsCollector     MetricsCollector
	logger               *Logger
}

// Option configures Store constructor behavior.
type Option func(*options)

// WithHasher configures the hash function routing keys to buckets.
//
// If nil is passed, DefaultHasher is used. The hasher is fixed for the
// store's lifetime; growth rehashes with the same function.
func WithHasher(h Hasher) Option {
	return func(o *options) {
		if h == nil {
			h = DefaultHasher()
		}
		o.hasher = h
	}
}

// WithInitialBuckets configures the starting bucket count, rounded up to
// a power of two. Each bucket holds 64 records; sizing for the expected
// working set avoids early growth cycles.
func WithInitialBuckets(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.initialBuckets = n
		}
	}
}

// WithPageSize configures the value-store page capacity in bytes. The
// value is rounded up to a power of two. A page also bounds the largest
// storable value.
func WithPageSize(size int) Option {
	return func(o *options) {
		o.pageSize = size
	}
}

// WithCompression selects the codec applied to values at or above the
// compression threshold.
//
// Example:
//
//	store, _ := gravix.New(
//	    gravix.WithCompression(pagestore.CompressionS2),
//	    gravix.WithCompressionThreshold(256),
//	)
func WithCompression(c pagestore.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCompressionThreshold sets the minimum value size (in bytes)
// considered for compression. Values below it are always stored raw.
func WithCompressionThreshold(n int) Option {
	return func(o *options) {
		o.compressionThreshold = n
	}
}

// WithOffHeap backs value pages with anonymous mappings instead of
// Go-heap slices, keeping bulk value memory out of the garbage
// collector's scan set.
func WithOffHeap(enabled bool) Option {
	return func(o *options) {
		o.offHeap = enabled
	}
}

// WithResourceConfig configures memory budgeting and allocation rate
// limiting. Page and table allocations beyond the budget fail with
// ErrAllocationFailed instead of growing without bound.
//
// Example:
//
//	store, _ := gravix.New(
//	    gravix.WithResourceConfig(resource.Config{
//	        MemoryLimitBytes: 1 << 30, // 1 GiB
//	    }),
//	)
func WithResourceConfig(cfg resource.Config) Option {
	return func(o *options) {
		o.resourceConfig = &cfg
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &gravix.BasicMetricsCollector{}
//	store, _ := gravix.New(gravix.WithMetricsCollector(metrics))
//	// ... use store ...
//	stats := metrics.GetStats()
//	fmt.Printf("Upserts: %d, Avg latency: %dns\n", stats.UpsertCount, stats.UpsertAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := gravix.NewJSONLogger(slog.LevelInfo)
//	store, _ := gravix.New(gravix.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		hasher:           DefaultHasher(),
		initialBuckets:   DefaultInitialBuckets,
		pageSize:         pagestore.DefaultPageSize,
		compression:      pagestore.CompressionNone,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
