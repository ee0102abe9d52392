package semkv

import (
	"log/slog"

	"github.com/hupe1980/semkv/codec"
	"github.com/hupe1980/semkv/internal/bloom"
	"github.com/hupe1980/semkv/internal/compress"
)

// Compression selects the envelope applied to checkpoint artifacts.
type Compression uint8

const (
	// CompressionNone stores artifacts as is.
	CompressionNone Compression = iota
	// CompressionLZ4 favours speed.
	CompressionLZ4
	// CompressionZSTD favours ratio.
	CompressionZSTD
)

func (c Compression) String() string { return c.internal().String() }

func (c Compression) internal() compress.Type {
	switch c {
	case CompressionLZ4:
		return compress.LZ4
	case CompressionZSTD:
		return compress.ZSTD
	default:
		return compress.None
	}
}

// ParseCompression maps "none", "lz4" and "zstd" to a Compression.
func ParseCompression(s string) (Compression, error) {
	t, err := compress.ParseType(s)
	if err != nil {
		return CompressionNone, err
	}
	switch t {
	case compress.LZ4:
		return CompressionLZ4, nil
	case compress.ZSTD:
		return CompressionZSTD, nil
	default:
		return CompressionNone, nil
	}
}

type options struct {
	dimension                int
	falsePositiveProbability float64
	expectedItemCount        uint64
	codec                    codec.Codec
	compression              Compression
	metricsCollector         MetricsCollector
	logger                   *Logger
	ioLimitBytesPerSec       int64
	maxConcurrentIO          int64
	retainedCheckpoints      int
	commitOnClose            bool
}

// Option configures Open.
type Option func(*options)

// WithDimension sets the vector dimension of a new store.
//
// Reopening an existing store without WithDimension uses the dimension
// recorded in its manifest. A conflicting explicit dimension makes Open fail
// with *ErrDimensionMismatch.
func WithDimension(dim int) Option {
	return func(o *options) {
		o.dimension = dim
	}
}

// WithFalsePositiveProbability sets the target false positive rate of the
// tombstone bloom filter. Default: 0.01.
func WithFalsePositiveProbability(p float64) Option {
	return func(o *options) {
		o.falsePositiveProbability = p
	}
}

// WithExpectedItemCount sizes the tombstone bloom filter. Default: 1_000_000.
func WithExpectedItemCount(n uint64) Option {
	return func(o *options) {
		o.expectedItemCount = n
	}
}

// WithCodec configures the payload codec of a new store.
//
// If nil is passed, codec.Default is used. Existing stores keep the codec
// recorded in their manifest.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression selects the checkpoint artifact compression. Default: LZ4.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCheckpointRateLimit caps checkpoint IO at bytesPerSec (0 = unlimited).
func WithCheckpointRateLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimitBytesPerSec = bytesPerSec
	}
}

// WithCheckpointConcurrency sets how many artifacts Commit uploads in parallel.
func WithCheckpointConcurrency(n int) Option {
	return func(o *options) {
		o.maxConcurrentIO = int64(n)
	}
}

// WithRetainedCheckpoints sets how many committed checkpoint versions are kept.
// Values below one are treated as one. Default: 1.
func WithRetainedCheckpoints(n int) Option {
	return func(o *options) {
		o.retainedCheckpoints = n
	}
}

// WithCommitOnClose controls whether Close commits before releasing
// resources. Default: true.
func WithCommitOnClose(enabled bool) Option {
	return func(o *options) {
		o.commitOnClose = enabled
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &semkv.BasicMetricsCollector{}
//	kv, _ := semkv.Open(ctx, semkv.Local(dir), semkv.WithMetricsCollector(metrics))
//	// ... use kv ...
//	stats := metrics.GetStats()
//	fmt.Printf("Puts: %d, Avg search latency: %dns\n", stats.PutCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := semkv.NewJSONLogger(slog.LevelInfo)
//	kv, _ := semkv.Open(ctx, semkv.Local(dir), semkv.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
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
		falsePositiveProbability: bloom.DefaultFalsePositiveProbability,
		expectedItemCount:        bloom.DefaultExpectedItemCount,
		compression:              CompressionLZ4,
		metricsCollector:         NoopMetricsCollector{},
		logger:                   NoopLogger(),
		retainedCheckpoints:      1,
		commitOnClose:            true,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.retainedCheckpoints < 1 {
		o.retainedCheckpoints = 1
	}
	return o
}
