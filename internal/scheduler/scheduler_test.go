package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSameKeyRunsInOrder(t *testing.T) {
	assert := assert.New(t)
	s := New(4, "test-order", zap.NewNop())

	var mu sync.Mutex
	var order []int
	for i := 0; i < 20; i++ {
		i := i
		err := s.AddWork(context.Background(), "G1:U1", func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		assert.NoError(err)
	}
	s.Shutdown()

	expected := make([]int, 20)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(expected, order)
}

func TestDifferentKeysRunInParallel(t *testing.T) {
	s := New(2, "test-parallel", zap.NewNop())
	defer s.Shutdown()

	release := make(chan struct{})
	var running atomic.Int32
	started := make(chan struct{}, 2)
	for _, key := range []string{"a", "b"} {
		require.NoError(t, s.AddWork(context.Background(), key, func(ctx context.Context) error {
			running.Add(1)
			started <- struct{}{}
			<-release
			return nil
		}))
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("work did not start")
		}
	}
	assert.Equal(t, int32(2), running.Load())
	close(release)
}

func TestFailuresAndPanicsDoNotStopWorkers(t *testing.T) {
	s := New(1, "test-failures", zap.NewNop())

	var done atomic.Int32
	require.NoError(t, s.AddWork(context.Background(), "k", func(ctx context.Context) error {
		return errors.New("boom")
	}))
	require.NoError(t, s.AddWork(context.Background(), "k", func(ctx context.Context) error {
		panic("worse")
	}))
	require.NoError(t, s.AddWork(context.Background(), "k", func(ctx context.Context) error {
		done.Add(1)
		return nil
	}))
	s.Shutdown()

	assert.Equal(t, int32(1), done.Load())
}

func TestAddWorkAfterShutdown(t *testing.T) {
	s := New(1, "test-closed", zap.NewNop())
	s.Shutdown()
	s.Shutdown()

	err := s.AddWork(context.Background(), "k", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestAddWorkHonorsContext(t *testing.T) {
	s := New(1, "test-ctx", zap.NewNop())
	defer s.Shutdown()

	release := make(chan struct{})
	require.NoError(t, s.AddWork(context.Background(), "busy", func(ctx context.Context) error {
		<-release
		return nil
	}))
	// wait until the only worker holds the busy item
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.AddWork(ctx, "other", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}
