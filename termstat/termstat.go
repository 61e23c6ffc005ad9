// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package termstat provides a stats implementation which periodically logs the
// statistics to the given writer. It is meant for watching a load at the
// terminal in lieu of an actual collector writing to an external tool like
// graphite or datadog. It provides stub implementations for some
// functionality.
package termstat

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// TotalSuffix marks a gauge holding the expected final value of the count
// with the same name minus the suffix. Such counts are printed as progress.
const TotalSuffix = ".total"

// Collector collects stats and prints them to the terminal
type Collector struct {
	lock    sync.Mutex
	indexes map[string]int
	names   []string
	stats   []int64
	totals  map[string]float64
	changed bool
	out     io.Writer

	done chan struct{}
	wg   sync.WaitGroup
}

// NewCollector initializes and returns a new Collector which writes every
// interval until Close is called.
func NewCollector(out io.Writer, interval time.Duration) *Collector {
	ts := &Collector{
		indexes: make(map[string]int),
		totals:  make(map[string]float64),
		out:     out,
		done:    make(chan struct{}),
	}
	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				ts.write()
			case <-ts.done:
				return
			}
		}
	}()
	return ts
}

// Close stops the periodic writes and writes the final state.
func (t *Collector) Close() error {
	close(t.done)
	t.wg.Wait()
	t.write()
	fmt.Fprintln(t.out)
	return nil
}

// Count adds value to the named stat at the specified rate.
func (t *Collector) Count(name string, value int64, rate float64, tags ...string) {
	t.lock.Lock()
	t.changed = true
	defer t.lock.Unlock()

	idx, ok := t.indexes[name]
	if !ok {
		idx = len(t.stats)
		t.stats = append(t.stats, 0)
		t.names = append(t.names, name)
		t.indexes[name] = idx
	}
	if rate < 1 {
		if rand.Float64() > rate {
			return
		}
	}
	t.stats[idx] += value
}

// Line renders the current stats.
func (t *Collector) Line() string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.line()
}

func (t *Collector) line() string {
	sb := strings.Builder{}
	for i := 0; i < len(t.stats); i++ {
		if total, ok := t.totals[t.names[i]]; ok && total > 0 {
			_, _ = sb.WriteString(fmt.Sprintf("%s: %d/%.0f (%.0f%%) ", t.names[i], t.stats[i], total, 100*float64(t.stats[i])/total))
			continue
		}
		_, _ = sb.WriteString(fmt.Sprintf("%s: %d ", t.names[i], t.stats[i]))
	}
	return sb.String()
}

func (t *Collector) write() {
	t.lock.Lock()
	if !t.changed {
		t.lock.Unlock()
		return
	}
	s := t.line()
	t.changed = false
	t.lock.Unlock()
	fmt.Fprint(t.out, "\r"+s)
}

// Gauge records totals for progress display; other gauges are ignored.
func (t *Collector) Gauge(name string, value float64, rate float64, tags ...string) {
	if !strings.HasSuffix(name, TotalSuffix) {
		return
	}
	t.lock.Lock()
	t.totals[strings.TrimSuffix(name, TotalSuffix)] = value
	t.changed = true
	t.lock.Unlock()
}

// Histogram does nothing.
func (t *Collector) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set does nothing.
func (t *Collector) Set(name string, value string, rate float64, tags ...string) {}

// Timing does nothing.
func (t *Collector) Timing(name string, value time.Duration, rate float64, tags ...string) {}
