package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestSubmitReturnsResult(t *testing.T) {
	p := New(2)
	defer p.Close()

	got, err := Submit(context.Background(), p, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

func TestSubmitPropagatesError(t *testing.T) {
	p := New(2)
	defer p.Close()

	_, err := Submit(context.Background(), p, func() (int, error) {
		return 0, errBoom
	})
	require.ErrorIs(t, err, errBoom)
}

func TestSubmitConcurrencyBound(t *testing.T) {
	p := New(4)
	defer p.Close()

	var active, max int32
	bump := func() {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&max)
			if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
				break
			}
		}
	}

	results := make(chan struct{}, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, _ = Submit(context.Background(), p, func() (int, error) {
				bump()
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return 0, nil
			})
			results <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-results
	}
	require.LessOrEqual(t, atomic.LoadInt32(&max), int32(4))
}

func TestSubmitCancelledContextReturnsEarly(t *testing.T) {
	p := New(1)
	defer p.Close()

	// Saturate the single worker so the next submission's job sits
	// queued rather than running immediately.
	busy := make(chan struct{})
	hold := make(chan struct{})
	go func() {
		_, _ = Submit(context.Background(), p, func() (int, error) {
			close(busy)
			<-hold
			return 0, nil
		})
	}()
	<-busy

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Submit(ctx, p, func() (int, error) { return 1, nil })
	require.ErrorIs(t, err, context.Canceled)
	close(hold)
}
