package rowflow

import (
	"time"

	"github.com/go-logr/logr"
)

// Option is a function that configures an App.
type Option func(*App)

// WithBrokers sets the Kafka broker addresses.
var WithBrokers = func(brokers ...string) Option {
	return func(a *App) {
		a.brokers = brokers
	}
}

// WithNumRoutines sets the number of worker routines consuming partitions.
var WithNumRoutines = func(n int) Option {
	return func(a *App) {
		a.numRoutines = n
	}
}

// WithLogr sets the logger for the application.
var WithLogr = func(log logr.Logger) Option {
	return func(a *App) {
		a.log = log
	}
}

// WithCommitInterval sets how often processed offsets are committed.
var WithCommitInterval = func(interval time.Duration) Option {
	return func(a *App) {
		a.commitInterval = interval
	}
}

// WithTopicManager attaches the topic manager consulted at startup to
// create or validate every declared topic.
var WithTopicManager = func(tm *TopicManager) Option {
	return func(a *App) {
		a.topicManager = tm
	}
}

// WithAutoCreateTopics toggles topic auto-creation at startup. When
// disabled, topics are validated instead at the configured level.
var WithAutoCreateTopics = func(enabled bool) Option {
	return func(a *App) {
		a.autoCreateTopics = enabled
	}
}

// WithValidationLevel sets the strictness used when auto-creation is
// disabled and startup falls back to validating broker state.
var WithValidationLevel = func(level ValidationLevel) Option {
	return func(a *App) {
		a.validationLevel = level
	}
}

// ErrorRecovery determines how a worker proceeds after a record fails
// processing.
type ErrorRecovery int

const (
	// RecoveryFail stops the worker and propagates the error.
	RecoveryFail ErrorRecovery = iota
	// RecoverySkip logs the failure and continues with the next record.
	RecoverySkip
)

// ErrorHandler is called with the error and the failed row and returns the
// recovery action. The default is fail-fast.
type ErrorHandler func(err error, row *Row) ErrorRecovery

// WithErrorHandler sets the per-record error handler; this is where
// skip-and-log policies live, not inside the pipeline.
var WithErrorHandler = func(handler ErrorHandler) Option {
	return func(a *App) {
		a.errorHandler = handler
	}
}
