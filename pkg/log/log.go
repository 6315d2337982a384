// Package log builds the zerolog-backed loggers used by windstream
// applications.
package log

import (
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

// New returns a zerolog logger writing human-readable output on a
// terminal and JSON when running inside Kubernetes.
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

// NewLogr returns a logr.Logger backed by New, for wiring into topology
// builders and apps.
func NewLogr() logr.Logger {
	return zerologr.New(New())
}
