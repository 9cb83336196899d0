// Package log constructs the zerolog logger used by rowflow binaries, with
// console output for interactive use and structured output when running in
// a cluster.
package log

import (
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

func New() *zerolog.Logger {
	var output io.Writer
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		output = os.Stderr
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02T15:04:05.999Z07:00"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	logger := zerolog.New(output).With().Timestamp().Logger()
	return &logger
}

// NewLogr adapts the default logger to the logr interface carried by
// rowflow library types.
func NewLogr() logr.Logger {
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"
	return zerologr.New(New())
}
