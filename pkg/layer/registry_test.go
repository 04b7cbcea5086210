package layer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireNeverBlocks(t *testing.T) {
	r := NewTokenRegistry()
	var tokens []*ReaderToken
	for i := 0; i < 100; i++ {
		tok := r.Acquire()
		require.NotNil(t, tok)
		tokens = append(tokens, tok)
	}
	for _, tok := range tokens {
		tok.Release()
	}
	require.NoError(t, r.CloseAndDrain(context.Background()))
}

func TestBarrierWaitsForEarlierReaders(t *testing.T) {
	r := NewTokenRegistry()
	tok := r.Acquire()
	require.NotNil(t, tok)

	released := make(chan struct{})
	done := make(chan struct{})
	go func() {
		assert.NoError(t, r.Barrier(context.Background()))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("barrier returned while a pre-barrier token was held")
	case <-time.After(50 * time.Millisecond):
	}

	go func() {
		tok.Release()
		close(released)
	}()
	<-released
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("barrier did not return after release")
	}
}

func TestBarrierIgnoresLaterReaders(t *testing.T) {
	r := NewTokenRegistry()
	pre := r.Acquire()
	require.NotNil(t, pre)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, r.Barrier(context.Background()))
		close(done)
	}()

	// Once the barrier is observed waiting on pre, the epoch is sealed;
	// any reader joining now belongs to the fresh epoch.
	time.Sleep(50 * time.Millisecond)
	late := r.Acquire()
	require.NotNil(t, late)
	defer late.Release()

	pre.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("barrier waited on a post-barrier reader")
	}
}

func TestBarrierHonorsContext(t *testing.T) {
	r := NewTokenRegistry()
	tok := r.Acquire()
	require.NotNil(t, tok)
	defer tok.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Barrier(ctx), context.DeadlineExceeded)
}

func TestCloseLockout(t *testing.T) {
	r := NewTokenRegistry()
	require.NoError(t, r.CloseAndDrain(context.Background()))
	for i := 0; i < 1000; i++ {
		assert.Nil(t, r.Acquire())
	}
}

func TestReleaseIdempotent(t *testing.T) {
	r := NewTokenRegistry()
	a := r.Acquire()
	b := r.Acquire()
	a.Release()
	a.Release()
	a.Release()

	done := make(chan struct{})
	go func() {
		assert.NoError(t, r.CloseAndDrain(context.Background()))
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("drain finished while b still held")
	case <-time.After(50 * time.Millisecond):
	}
	b.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain stuck after final release")
	}
}

func TestConcurrentAcquireReleaseWithBarriers(t *testing.T) {
	r := NewTokenRegistry()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				tok := r.Acquire()
				if tok == nil {
					return
				}
				tok.Release()
			}
		}()
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, r.Barrier(context.Background()))
	}
	close(stop)
	wg.Wait()
	require.NoError(t, r.CloseAndDrain(context.Background()))
}
