package stardwh

import (
	"time"
)

// Statter is the metrics seam of the pipeline. Stages count rows, warnings
// and loaded chunks through it.
type Statter interface {
	Count(name string, value int64, rate float64, tags ...string)
	Gauge(name string, value float64, rate float64, tags ...string)
	Histogram(name string, value float64, rate float64, tags ...string)
	Set(name string, value string, rate float64, tags ...string)
	Timing(name string, value time.Duration, rate float64, tags ...string)
}

type NopStatter struct{}

func (NopStatter) Count(name string, value int64, rate float64, tags ...string) {}

func (NopStatter) Gauge(name string, value float64, rate float64, tags ...string) {}

func (NopStatter) Histogram(name string, value float64, rate float64, tags ...string) {}

func (NopStatter) Set(name string, value string, rate float64, tags ...string) {}

func (NopStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {}

// Logger is satisfied by *logrus.Logger and *logrus.Entry.
type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
}

type NopLogger struct{}

func (NopLogger) Printf(format string, v ...interface{}) {}

func (NopLogger) Debugf(format string, v ...interface{}) {}

func (NopLogger) Warnf(format string, v ...interface{}) {}
