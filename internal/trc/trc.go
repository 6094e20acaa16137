// Package trc records a submission's job timeline as a Chrome Trace Event
// JSON file, loadable in chrome://tracing or the Perfetto UI: one track
// per endpoint, one slice per job, so a run's scheduling behaviour (which
// endpoint ran what, when, and for how long) is visually inspectable
// after the fact.
//
// Adapted from distr1-distri/internal/trace: the Sink/Event/PendingEvent
// machinery is kept verbatim in shape, but the host /proc/stat and
// /proc/meminfo CPU/memory samplers are dropped — there is no single
// "host" to sample in a dispatcher that fans jobs out across a fleet of
// remote container endpoints, and a submission doesn't run long enough
// for a periodic host-resource sample to be a meaningful part of its
// timeline.
package trc

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var start = time.Now()

var (
	sinkMu sync.Mutex
	sink   io.Writer = ioutil.Discard
)

// Sink writes all following Event()s as a Chrome trace event file into w.
func Sink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = w
	w.Write([]byte{'['})
}

// Enable creates a trace file at $TMPDIR/butido.traces/prefix.$PID and
// sinks events into it. The filename assumes the OS does not frequently
// re-use the same pid.
func Enable(prefix string) (*os.File, error) {
	fn := filepath.Join(os.TempDir(), "butido.traces", fmt.Sprintf("%s.%d", prefix, os.Getpid()))
	if err := os.MkdirAll(filepath.Dir(fn), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(fn)
	if err != nil {
		return nil, err
	}
	Sink(f)
	return f, nil
}

// PendingEvent is an open "complete" (ph=X) trace event; call Done once
// the event's duration has elapsed.
type PendingEvent struct {
	Name           string      `json:"name"` // name of the event, as displayed in Trace Viewer
	Categories     string      `json:"cat"`  // event categories (comma-separated)
	Type           string      `json:"ph"`   // event type (single character)
	ClockTimestamp uint64      `json:"ts"`   // tracing clock timestamp (microsecond granularity)
	Duration       uint64      `json:"dur"`
	Pid            uint64      `json:"pid"` // track group, used here as an endpoint index
	Tid            uint64      `json:"tid"` // track within the group; JobEvent always uses 0
	Args           interface{} `json:"args"`

	start time.Time
}

// Done finalizes the event's duration and writes it to the sink.
func (pe *PendingEvent) Done() {
	pe.Duration = uint64(time.Since(pe.start) / time.Microsecond)
	b, err := json.Marshal(pe)
	if err != nil {
		panic(err)
	}
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if _, err := sink.Write(append(b, ',')); err != nil {
		log.Printf("[trc] %v", err)
	}
}

// Event opens a new complete event on track tid.
func Event(name string, tid int) *PendingEvent {
	return &PendingEvent{
		Name:           name,
		Type:           "X",
		ClockTimestamp: uint64(time.Since(start) / time.Microsecond),
		Tid:            uint64(tid),
		start:          time.Now(),
	}
}

// JobEvent opens a complete event for one job's container run, grouped
// under endpointIndex as its pid (so Trace Viewer renders one row per
// endpoint) and tagged with the job's uuid and package identity.
func JobEvent(endpointName string, endpointIndex int, jobUUID, pkgName, pkgVersion string) *PendingEvent {
	ev := Event(fmt.Sprintf("%s-%s", pkgName, pkgVersion), 0)
	ev.Categories = "job"
	ev.Pid = uint64(endpointIndex)
	ev.Args = map[string]string{
		"endpoint": endpointName,
		"job_uuid": jobUUID,
		"package":  pkgName,
		"version":  pkgVersion,
	}
	return ev
}
