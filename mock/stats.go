package mock

import (
	"fmt"
	"sync"
	"time"
)

// RecordingStatter is used for testing. It records counts and the last value
// of each gauge.
type RecordingStatter struct {
	mu     sync.Mutex
	Counts map[string]int64
	Gauges map[string]float64
}

// Count implements Count.
func (r *RecordingStatter) Count(name string, value int64, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Counts == nil {
		r.Counts = make(map[string]int64)
	}
	r.Counts[name] += value
}

// Gauge implements Gauge.
func (r *RecordingStatter) Gauge(name string, value float64, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Gauges == nil {
		r.Gauges = make(map[string]float64)
	}
	r.Gauges[name] = value
}

// Histogram implements Histogram.
func (r *RecordingStatter) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set implements Set.
func (r *RecordingStatter) Set(name string, value string, rate float64, tags ...string) {}

// Timing implements Timing.
func (r *RecordingStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {}

// RecordingLogger keeps every warning it is given.
type RecordingLogger struct {
	mu    sync.Mutex
	Warns []string
}

func (l *RecordingLogger) Printf(format string, v ...interface{}) {}

func (l *RecordingLogger) Debugf(format string, v ...interface{}) {}

func (l *RecordingLogger) Warnf(format string, v ...interface{}) {
	l.mu.Lock()
	l.Warns = append(l.Warns, fmt.Sprintf(format, v...))
	l.mu.Unlock()
}
