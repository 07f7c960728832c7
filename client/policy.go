package client

import (
	"fmt"
	"strings"

	log "github.com/sjqzhang/seelog"
)

// Policy decides what happens with the error of an auxiliary step.
type Policy func(name string, fn func() error) error

// bestEffort runs fn and drops its error after logging it. Used for the
// courtesy termination after a completed upload.
var bestEffort Policy = func(name string, fn func() error) error {
	if err := fn(); err != nil {
		log.Warnf("%s: ignored: %v", name, err)
	}
	return nil
}

// leveledLogger routes retryablehttp logs into seelog.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Error(format(msg, keysAndValues))
}

func (leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Info(format(msg, keysAndValues))
}

func (leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	log.Debug(format(msg, keysAndValues))
}

func (leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warn(format(msg, keysAndValues))
}

func format(msg string, keysAndValues []interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return b.String()
}
