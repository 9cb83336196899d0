package rowflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

type workerState string

const (
	stateCreated        workerState = "CREATED"
	stateRunning        workerState = "RUNNING"
	stateCloseRequested workerState = "CLOSE_REQUESTED"
	stateClosed         workerState = "CLOSED"
)

// worker owns one consumer and drives the per-record dispatch loop. The
// dataframe itself is read-only at this point, so all workers share it.
type worker struct {
	name     string
	df       *StreamingDataFrame
	consumer RowConsumer
	log      logr.Logger

	commitInterval time.Duration
	lastCommit     time.Time
	errorHandler   ErrorHandler

	mu    sync.Mutex
	state workerState

	closeRequested chan struct{}
	closeOnce      sync.Once
	closed         sync.WaitGroup
}

func newWorker(name string, df *StreamingDataFrame, consumer RowConsumer, commitInterval time.Duration, errorHandler ErrorHandler, log logr.Logger) *worker {
	w := &worker{
		name:           name,
		df:             df,
		consumer:       consumer,
		log:            log,
		commitInterval: commitInterval,
		errorHandler:   errorHandler,
		state:          stateCreated,
		closeRequested: make(chan struct{}),
	}
	// Accounted for here, not in run: a close racing a starting run must
	// wait for the full shutdown.
	w.closed.Add(1)
	return w
}

func (w *worker) run(ctx context.Context) error {
	w.setState(stateRunning)
	defer w.closed.Done()
	defer w.consumer.Close()
	defer w.setState(stateClosed)

	w.lastCommit = time.Now()
	for {
		select {
		case <-ctx.Done():
			return w.finalCommit()
		case <-w.closeRequested:
			return w.finalCommit()
		default:
		}

		rows, err := w.consumer.PollRows(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return w.finalCommit()
			}
			return err
		}

		for _, row := range rows {
			if _, err := w.df.Process(ctx, row); err != nil {
				if w.errorHandler != nil && w.errorHandler(err, row) == RecoverySkip {
					w.log.Error(err, "skipping failed record",
						"topic", row.Topic, "partition", row.Partition, "offset", row.Offset)
					continue
				}
				return err
			}
		}

		if time.Since(w.lastCommit) >= w.commitInterval {
			if err := w.consumer.Commit(ctx); err != nil {
				return err
			}
			w.lastCommit = time.Now()
		}
	}
}

// finalCommit flushes marked offsets once more on the way out. A failure
// here only costs reprocessing, so it is logged, not returned.
func (w *worker) finalCommit() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.consumer.Commit(ctx); err != nil {
		w.log.Error(err, "final offset commit failed")
	}
	return nil
}

func (w *worker) close() error {
	w.closeOnce.Do(func() {
		w.setState(stateCloseRequested)
		close(w.closeRequested)
	})
	w.closed.Wait()
	return nil
}

func (w *worker) setState(s workerState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}
