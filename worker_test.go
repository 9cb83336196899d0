package rowflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/go-logr/logr"
)

// fakeConsumer hands out the given batches one poll at a time and then
// reports cancellation, which is how a real poll ends on shutdown.
type fakeConsumer struct {
	mu      sync.Mutex
	batches [][]*Row
	commits int
	closed  bool
	spin    bool
}

func (c *fakeConsumer) PollRows(_ context.Context) ([]*Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.batches) == 0 {
		if c.spin {
			return nil, nil
		}
		return nil, context.Canceled
	}
	batch := c.batches[0]
	c.batches = c.batches[1:]
	return batch, nil
}

func (c *fakeConsumer) Commit(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits++
	return nil
}

func (c *fakeConsumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConsumer) commitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

func countingDataFrame(t *testing.T, processed *atomic.Int64, fail func(*Row) error) *StreamingDataFrame {
	t.Helper()
	df, err := NewStreamingDataFrame(inputTopics())
	assert.NoError(t, err)
	df.Pipeline().Apply(func(_ context.Context, row *Row) ([]*Row, error) {
		if fail != nil {
			if err := fail(row); err != nil {
				return nil, err
			}
		}
		processed.Add(1)
		return []*Row{row}, nil
	}, "count")
	return df
}

func TestWorker_Run(t *testing.T) {
	t.Run("processes every polled row and commits", func(t *testing.T) {
		var processed atomic.Int64
		df := countingDataFrame(t, &processed, nil)
		consumer := &fakeConsumer{batches: [][]*Row{
			{{Value: map[string]any{"n": 1}}, {Value: map[string]any{"n": 2}}},
			{{Value: map[string]any{"n": 3}}},
		}}

		w := newWorker("worker-0", df, consumer, time.Millisecond, nil, logr.Discard())
		assert.NoError(t, w.run(context.Background()))

		assert.Equal(t, int64(3), processed.Load())
		assert.True(t, consumer.commitCount() >= 1)
		assert.True(t, consumer.closed)
	})

	t.Run("a processing error fails the worker by default", func(t *testing.T) {
		boom := errors.New("boom")
		var processed atomic.Int64
		df := countingDataFrame(t, &processed, func(row *Row) error {
			if row.Value["n"].(int) == 2 {
				return boom
			}
			return nil
		})
		consumer := &fakeConsumer{batches: [][]*Row{{
			{Value: map[string]any{"n": 1}},
			{Value: map[string]any{"n": 2}},
			{Value: map[string]any{"n": 3}},
		}}}

		w := newWorker("worker-0", df, consumer, time.Second, nil, logr.Discard())
		err := w.run(context.Background())
		assert.IsError(t, err, boom)
		assert.Equal(t, int64(1), processed.Load())
	})

	t.Run("a skip handler drops the failed record and continues", func(t *testing.T) {
		boom := errors.New("boom")
		var processed atomic.Int64
		df := countingDataFrame(t, &processed, func(row *Row) error {
			if row.Value["n"].(int) == 2 {
				return boom
			}
			return nil
		})
		consumer := &fakeConsumer{batches: [][]*Row{{
			{Value: map[string]any{"n": 1}},
			{Value: map[string]any{"n": 2}},
			{Value: map[string]any{"n": 3}},
		}}}

		var handled atomic.Int64
		handler := func(err error, _ *Row) ErrorRecovery {
			handled.Add(1)
			return RecoverySkip
		}

		w := newWorker("worker-0", df, consumer, time.Second, handler, logr.Discard())
		assert.NoError(t, w.run(context.Background()))
		assert.Equal(t, int64(2), processed.Load())
		assert.Equal(t, int64(1), handled.Load())
	})

	t.Run("close stops an idle worker", func(t *testing.T) {
		var processed atomic.Int64
		df := countingDataFrame(t, &processed, nil)
		consumer := &fakeConsumer{spin: true}

		w := newWorker("worker-0", df, consumer, time.Second, nil, logr.Discard())
		done := make(chan error, 1)
		go func() { done <- w.run(context.Background()) }()

		// Give the loop a moment to start polling.
		time.Sleep(10 * time.Millisecond)
		assert.NoError(t, w.close())

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop after close")
		}
		assert.True(t, consumer.commitCount() >= 1)
	})

	t.Run("a close racing a starting run waits for the full shutdown", func(t *testing.T) {
		var processed atomic.Int64
		df := countingDataFrame(t, &processed, nil)
		consumer := &fakeConsumer{}

		w := newWorker("worker-0", df, consumer, time.Second, nil, logr.Discard())

		closeDone := make(chan struct{})
		go func() {
			_ = w.close()
			close(closeDone)
		}()

		// close must not return before run has wound the worker down.
		select {
		case <-closeDone:
			t.Fatal("close returned before the worker ran")
		case <-time.After(20 * time.Millisecond):
		}

		assert.NoError(t, w.run(context.Background()))
		select {
		case <-closeDone:
		case <-time.After(5 * time.Second):
			t.Fatal("close did not return after the worker stopped")
		}
		assert.True(t, consumer.closed)
	})

	t.Run("context cancellation stops the worker", func(t *testing.T) {
		var processed atomic.Int64
		df := countingDataFrame(t, &processed, nil)
		consumer := &fakeConsumer{spin: true}

		ctx, cancel := context.WithCancel(context.Background())
		w := newWorker("worker-0", df, consumer, time.Second, nil, logr.Discard())
		done := make(chan error, 1)
		go func() { done <- w.run(ctx) }()

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop after cancellation")
		}
	})
}
