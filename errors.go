package rowflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoInputTopics is returned when a StreamingDataFrame is constructed
// without any input topics.
var ErrNoInputTopics = errors.New("rowflow: at least one input topic is required")

// ErrInvalidResultType is returned when a user-supplied apply function
// returns a value outside its contract.
var ErrInvalidResultType = errors.New("rowflow: invalid apply result type")

// ErrFieldNotFound is returned when a column expression references a field
// absent from the row value.
var ErrFieldNotFound = errors.New("rowflow: field not found")

// ErrTypeMismatch is returned when a column operation is applied to
// incompatible operand types.
var ErrTypeMismatch = errors.New("rowflow: type mismatch")

// ErrDivisionByZero is returned by Div/Mod expressions with a zero divisor.
var ErrDivisionByZero = errors.New("rowflow: division by zero")

// ErrMissingSourceTopic is returned when a changelog topic is derived from a
// source topic that exists neither on the broker nor in the local registry.
var ErrMissingSourceTopic = errors.New("rowflow: missing source topic")

// ErrConsumerNotBound is returned when the consumer is accessed before one
// has been assigned to the dataframe.
var ErrConsumerNotBound = errors.New("rowflow: consumer instance has not been provided")

// ErrProducerNotBound is returned when the producer is accessed before one
// has been assigned to the dataframe.
var ErrProducerNotBound = errors.New("rowflow: producer instance has not been provided")

// ValidationIssue describes why a single topic failed validation. Either the
// topic is missing from the broker, or Expected/Actual hold the mismatching
// configurations.
type ValidationIssue struct {
	Missing  bool
	Expected *TopicConfig
	Actual   *TopicConfig
}

func (v *ValidationIssue) String() string {
	if v.Missing {
		return "TOPIC MISSING"
	}
	return fmt.Sprintf("expected: %v, actual: %v", v.Expected, v.Actual)
}

// TopicValidationError aggregates every validation mismatch found during a
// single validation pass. It is always raised batched, never per-topic.
type TopicValidationError struct {
	Issues map[string]*ValidationIssue
}

func (e *TopicValidationError) Error() string {
	names := make([]string, 0, len(e.Issues))
	for name := range e.Issues {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("rowflow: topics failed validation:")
	for _, name := range names {
		fmt.Fprintf(&sb, "\n  %s: %s", name, e.Issues[name])
	}
	return sb.String()
}
