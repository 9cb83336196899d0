package rowflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// App runs a StreamingDataFrame against Kafka: it creates or validates the
// declared topics once at startup, then consumes the dataframe's input
// topics with a group of workers and pushes every record through the
// pipeline.
type App struct {
	df        *StreamingDataFrame
	groupName string

	brokers     []string
	numRoutines int
	log         logr.Logger

	commitInterval   time.Duration
	topicManager     *TopicManager
	autoCreateTopics bool
	validationLevel  ValidationLevel
	errorHandler     ErrorHandler

	// mu guards the shutdown handshake; Close may race a starting Run.
	mu      sync.Mutex
	closed  bool
	workers []*worker
	eg      *errgroup.Group
	cancel  context.CancelFunc
}

// New creates an application around a fully built dataframe. Chain building
// must be finished before Run is called; workers only read the step list.
func New(df *StreamingDataFrame, groupName string, opts ...Option) *App {
	a := &App{
		df:               df,
		groupName:        groupName,
		brokers:          []string{"localhost:9092"},
		numRoutines:      1,
		log:              logr.Discard(),
		commitInterval:   5 * time.Second,
		autoCreateTopics: true,
		validationLevel:  ValidationRequired,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run blocks until an error occurs or Close triggers a graceful shutdown.
// Calling Close before Run makes Run return immediately.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.cancel = cancel
	a.mu.Unlock()

	if err := a.prepareTopics(ctx); err != nil {
		return err
	}

	producer, err := NewRowProducer(a.brokers)
	if err != nil {
		return err
	}
	defer producer.Close()
	a.df.SetProducer(producer)

	topics := make([]*Topic, 0, len(a.df.TopicsIn()))
	for _, t := range a.df.TopicsIn() {
		topics = append(topics, t)
	}

	// Build every worker before starting any, so Close always sees the
	// full set.
	workers := make([]*worker, 0, a.numRoutines)
	for i := 0; i < a.numRoutines; i++ {
		name := fmt.Sprintf("routine-%d", i)
		consumer, err := NewRowConsumer(a.brokers, a.groupName, topics, a.log.WithName(name))
		if err != nil {
			for _, w := range workers {
				w.consumer.Close()
			}
			return err
		}
		workers = append(workers, newWorker(name, a.df, consumer, a.commitInterval, a.errorHandler, a.log.WithName(name)))
	}

	grp, ctx := errgroup.WithContext(ctx)
	a.mu.Lock()
	a.workers = workers
	a.eg = grp
	a.mu.Unlock()

	for _, w := range workers {
		w := w
		grp.Go(func() error { return w.run(ctx) })
	}
	return grp.Wait()
}

// Close requests a graceful shutdown and waits for all workers to finish.
func (a *App) Close() error {
	a.mu.Lock()
	a.closed = true
	cancel, workers, eg := a.cancel, a.workers, a.eg
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var errs error
	for _, w := range workers {
		errs = multierr.Append(errs, w.close())
	}
	if eg != nil {
		if err := eg.Wait(); err != nil && err != context.Canceled {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// prepareTopics consults the topic manager exactly once, before any worker
// starts consuming.
func (a *App) prepareTopics(ctx context.Context) error {
	if a.topicManager == nil {
		return nil
	}
	if a.autoCreateTopics {
		a.log.Info("auto-creation is enabled, creating required topics")
		return a.topicManager.CreateAllTopics(ctx)
	}
	a.log.Info("auto-creation is disabled, validating required topics")
	return a.topicManager.ValidateAllTopics(ctx, a.validationLevel)
}
