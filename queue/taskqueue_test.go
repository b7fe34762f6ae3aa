package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lunarcache/lunardb/engine"
)

func TestTaskQueue_EnqueueWaitResult(t *testing.T) {
	t.Parallel()
	q := New(16, WithWorkers(2))
	q.Start()
	defer q.Stop()

	h, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, 42, res)
}

func TestTaskQueue_JobError(t *testing.T) {
	t.Parallel()
	q := New(16, WithWorkers(1))
	q.Start()
	defer q.Stop()

	wantErr := errors.New("boom")
	h, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	})
	require.NoError(t, err)

	res, err := h.Wait(context.Background())
	require.Nil(t, res)
	require.Equal(t, wantErr, err)
}

func TestTaskQueue_PanicRecovered(t *testing.T) {
	t.Parallel()
	q := New(16, WithWorkers(1))
	q.Start()
	defer q.Stop()

	h, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
		panic("kaboom")
	})
	require.NoError(t, err)

	_, err = h.Wait(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "kaboom")
}

func TestTaskQueue_StopDrainsThenRejects(t *testing.T) {
	t.Parallel()
	q := New(16, WithWorkers(2))
	q.Start()

	var ran atomic.Int32
	handles := make([]*Handle, 0, 20)
	for i := 0; i < 20; i++ {
		h, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
			ran.Add(1)
			return nil, nil
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	q.Stop()
	require.Equal(t, int32(20), ran.Load())

	_, err := q.Enqueue(func(ctx context.Context) (interface{}, error) { return nil, nil })
	require.ErrorIs(t, err, engine.ErrStopped)
}

func TestTaskQueue_MetricsReported(t *testing.T) {
	t.Parallel()
	fm := &fakeMetrics{}
	q := New(4, WithWorkers(1), WithMetrics(fm))
	q.Start()
	defer q.Stop()

	block := make(chan struct{})
	h, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fm.activeSeen() >= 1 }, time.Second, time.Millisecond)
	close(block)
	_, _ = h.Wait(context.Background())
	require.Eventually(t, func() bool { return fm.activeSeen() == 0 || fm.lastActive() == 0 }, time.Second, time.Millisecond)
}

type fakeMetrics struct {
	depth  atomic.Int32
	active atomic.Int32
}

func (f *fakeMetrics) SetQueueDepth(n int)  { f.depth.Store(int32(n)) }
func (f *fakeMetrics) SetQueueActive(n int) { f.active.Store(int32(n)) }
func (f *fakeMetrics) activeSeen() int32    { return f.active.Load() }
func (f *fakeMetrics) lastActive() int32    { return f.active.Load() }

func ExampleTaskQueue() {
	q := New(4, WithWorkers(1))
	q.Start()
	defer q.Stop()

	h, _ := q.Enqueue(func(ctx context.Context) (interface{}, error) {
		return "done", nil
	})
	res, _ := h.Wait(context.Background())
	fmt.Println(res)
	// Output: done
}
