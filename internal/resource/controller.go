package resource

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultMaxConcurrentIO is the default number of parallel artifact transfers.
const DefaultMaxConcurrentIO = 3

// Config holds resource limits.
type Config struct {
	// MaxConcurrentIO is the maximum number of concurrent artifact transfers.
	// If 0, defaults to DefaultMaxConcurrentIO.
	MaxConcurrentIO int64

	// IOLimitBytesPerSec is the maximum checkpoint IO throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages checkpoint concurrency and IO throughput.
type Controller struct {
	cfg Config

	ioSem     *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentIO <= 0 {
		cfg.MaxConcurrentIO = DefaultMaxConcurrentIO
	}

	c := &Controller{
		cfg:   cfg,
		ioSem: semaphore.NewWeighted(cfg.MaxConcurrentIO),
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
// Requests larger than one second of budget are split into burst-sized waits.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil || bytes <= 0 {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// TryAcquireIO attempts to acquire IO tokens without blocking.
// Returns true if tokens were acquired, false otherwise.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || c.ioLimiter == nil {
		return true
	}
	return c.ioLimiter.AllowN(time.Now(), bytes)
}

// AcquireSlot reserves one transfer slot, blocking while all are busy.
func (c *Controller) AcquireSlot(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.ioSem.Acquire(ctx, 1)
}

// ReleaseSlot releases a transfer slot.
func (c *Controller) ReleaseSlot() {
	if c == nil {
		return
	}
	c.ioSem.Release(1)
}

// Run executes tasks in parallel, bounded by the transfer slots, and returns
// the first error. The context passed to tasks is canceled on first failure.
func (c *Controller) Run(ctx context.Context, tasks ...func(context.Context) error) error {
	if c == nil {
		for _, task := range tasks {
			if err := task(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			if err := c.AcquireSlot(gctx); err != nil {
				return err
			}
			defer c.ReleaseSlot()
			return task(gctx)
		})
	}
	return g.Wait()
}
