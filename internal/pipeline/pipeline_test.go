package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_ReturnsValue(t *testing.T) {
	p := NewPool(context.Background())
	defer p.Close()

	f := Submit(p, func(_ context.Context) (int, error) {
		return 42, nil
	})

	got, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestSubmit_ErrorStaysInFuture(t *testing.T) {
	p := NewPool(context.Background())
	defer p.Close()

	boom := errors.New("boom")
	bad := Submit(p, func(_ context.Context) (int, error) { return 0, boom })
	good := Submit(p, func(_ context.Context) (int, error) { return 7, nil })

	_, err := bad.Wait(context.Background())
	require.ErrorIs(t, err, boom)

	got, err := good.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestPool_BoundedToTwoWorkers(t *testing.T) {
	p := NewPool(context.Background())
	defer p.Close()

	var running, peak atomic.Int32

	release := make(chan struct{})
	futures := make([]*Future[int], 0, 4)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	for i := range 4 {
		futures = append(futures, Submit(p, func(_ context.Context) (int, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}

			<-release
			running.Add(-1)

			return i, nil
		}))
	}

	for i, f := range futures {
		got, err := f.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}

	assert.LessOrEqual(t, peak.Load(), int32(Workers))
}

func TestPool_CloseCancelsInFlight(t *testing.T) {
	p := NewPool(context.Background())

	started := make(chan struct{})
	f := Submit(p, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()

		return 0, ctx.Err()
	})

	<-started
	p.Close()

	_, err := f.Wait(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	// Second close is a no-op.
	p.Close()
}

func TestFuture_WaitHonorsContext(t *testing.T) {
	p := NewPool(context.Background())
	defer p.Close()

	block := make(chan struct{})
	defer close(block)

	f := Submit(p, func(_ context.Context) (int, error) {
		<-block
		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestResolved(t *testing.T) {
	f := Resolved("page-0", nil)

	got, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "page-0", got)
}
