package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestController_MemoryLimit(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.True(t, c.TryAcquireMemory(60))
	require.True(t, c.TryAcquireMemory(40))
	require.Equal(t, int64(100), c.MemoryUsage())

	require.False(t, c.TryAcquireMemory(1))

	c.ReleaseMemory(40)
	require.Equal(t, int64(60), c.MemoryUsage())
	require.True(t, c.TryAcquireMemory(40))
}

func TestController_MemoryUnlimitedTracksOnly(t *testing.T) {
	c := NewController(Config{})

	require.True(t, c.TryAcquireMemory(1<<40))
	require.Equal(t, int64(1<<40), c.MemoryUsage())
	c.ReleaseMemory(1 << 40)
	require.Equal(t, int64(0), c.MemoryUsage())
}

func TestController_AcquireMemoryBlocksUntilRelease(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 10})
	require.True(t, c.TryAcquireMemory(10))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.AcquireMemory(ctx, 5)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	c.ReleaseMemory(10)
	require.NoError(t, c.AcquireMemory(context.Background(), 5))
}

func TestController_NilIsUnlimited(t *testing.T) {
	var c *Controller

	require.True(t, c.TryAcquireMemory(1<<50))
	c.ReleaseMemory(1 << 50)
	require.Equal(t, int64(0), c.MemoryUsage())
	require.NoError(t, c.AcquireIO(context.Background(), 1<<30))
	require.True(t, c.TryAcquireBackground())
	c.ReleaseBackground()
}

func TestController_BackgroundSlots(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 1})

	require.True(t, c.TryAcquireBackground())
	require.False(t, c.TryAcquireBackground())

	c.ReleaseBackground()
	require.True(t, c.TryAcquireBackground())
	c.ReleaseBackground()
}

func TestController_IOLimiter(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	// Within the burst: immediate.
	start := time.Now()
	require.NoError(t, c.AcquireIO(context.Background(), 1024))
	require.Less(t, time.Since(start), time.Second)

	// Larger than the burst: clamped, not an error.
	require.NoError(t, c.AcquireIO(context.Background(), 4<<20))
}
