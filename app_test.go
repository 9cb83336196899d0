package rowflow

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func TestApp_Close(t *testing.T) {
	t.Run("close before run is a clean no-op and makes run return", func(t *testing.T) {
		df, err := NewStreamingDataFrame(inputTopics())
		assert.NoError(t, err)
		app := New(df, "group")

		assert.NoError(t, app.Close())
		assert.NoError(t, app.Run())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		df, err := NewStreamingDataFrame(inputTopics())
		assert.NoError(t, err)
		app := New(df, "group")

		assert.NoError(t, app.Close())
		assert.NoError(t, app.Close())
	})

	t.Run("close from another goroutine shuts a running app down", func(t *testing.T) {
		df, err := NewStreamingDataFrame(inputTopics())
		assert.NoError(t, err)
		app := New(df, "group", WithNumRoutines(2))

		done := make(chan error, 1)
		go func() { done <- app.Run() }()

		// Fire the shutdown while Run may still be starting workers; the
		// handshake must cover every interleaving.
		assert.NoError(t, app.Close())

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(30 * time.Second):
			t.Fatal("app did not stop after close")
		}
	})
}
