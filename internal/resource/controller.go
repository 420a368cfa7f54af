package resource

import (
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when an allocation would exceed the
// configured memory budget.
var ErrMemoryLimitExceeded = errors.New("resource: memory limit exceeded")

// ErrAllocRateExceeded is returned when allocations arrive faster than the
// configured rate allows.
var ErrAllocRateExceeded = errors.New("resource: allocation rate exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for managed memory (pages and
	// bucket tables). If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// AllocsPerSec is the maximum sustained rate of page/table
	// allocations. If 0, unlimited. Growth storms are the target here:
	// a misbehaving caller that saturates buckets in a loop gets
	// AllocationFailure instead of driving rebuild after rebuild.
	AllocsPerSec float64

	// AllocBurst is the burst size for the allocation limiter.
	// Defaults to 4 when AllocsPerSec is set.
	AllocBurst int
}

// Controller manages the memory budget shared by the value store's pages
// and the index's bucket tables.
//
// All methods are non-blocking: callers control retry policy. A nil
// Controller imposes no limits.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	allocLimiter *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.AllocsPerSec > 0 {
		burst := cfg.AllocBurst
		if burst <= 0 {
			burst = 4
		}
		c.allocLimiter = rate.NewLimiter(rate.Limit(cfg.AllocsPerSec), burst)
	}

	return c
}

// AcquireMemory attempts to reserve memory for one allocation event.
// Returns ErrMemoryLimitExceeded or ErrAllocRateExceeded if a limit
// would be exceeded; the reservation is not held in that case.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.allocLimiter != nil && !c.allocLimiter.AllowN(time.Now(), 1) {
		return ErrAllocRateExceeded
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current tracked memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}
