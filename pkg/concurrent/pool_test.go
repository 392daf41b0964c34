package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestParallelMapPreservesOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	items := []int{5, 1, 4, 2, 3}
	out, err := ParallelMap(context.Background(), items, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{50, 10, 40, 20, 30}, out)
}

func TestParallelMapRespectsLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	var current, peak int32
	items := make([]int, 20)
	_, err := ParallelMap(context.Background(), items, func(_ context.Context, _ int) (struct{}, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return struct{}{}, nil
	}, 4)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(4))
}

func TestParallelMapReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	out, err := ParallelMap(context.Background(), []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	}, 0)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, out[0])
	assert.Equal(t, 3, out[2])
}

func TestParallelMapEmpty(t *testing.T) {
	out, err := ParallelMap(context.Background(), []int(nil), func(context.Context, int) (int, error) { return 0, nil }, 2)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestWorkerPoolDoHonoursContext(t *testing.T) {
	pool := NewWorkerPool(1)
	assert.Equal(t, 1, pool.Size())

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func() error {
			<-release
			return nil
		})
		close(done)
	}()

	require.Eventually(t, func() bool { return pool.InFlight() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := pool.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}
