package logstream

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"golang.org/x/xerrors"
)

// Sink receives parsed log items in source order, per job (spec.md §5's
// "log items for a single job are delivered to that job's sink in source
// order").
type Sink interface {
	Push(Item) error
}

// FileSink appends one serialized line per item to an underlying writer,
// matching spec.md's log file layout
// (`<log_dir>/<timestamp>-<package-name>`).
type FileSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewFileSink wraps w in a buffered FileSink. Callers must call Flush when
// done.
func NewFileSink(w io.Writer) *FileSink {
	return &FileSink{w: bufio.NewWriter(w)}
}

func (s *FileSink) Push(it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(Serialize(it)); err != nil {
		return xerrors.Errorf("writing log line: %w", err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return xerrors.Errorf("writing log line terminator: %w", err)
	}
	return nil
}

// Flush writes any buffered bytes to the underlying writer.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return xerrors.Errorf("flushing log file: %w", err)
	}
	return nil
}

// DBSink accumulates the full log text in memory for storage on the
// jobs.log_text column (spec.md §4.8's implicit DbSink).
type DBSink struct {
	mu   sync.Mutex
	text strings.Builder
}

// NewDBSink constructs an empty DBSink.
func NewDBSink() *DBSink { return &DBSink{} }

func (s *DBSink) Push(it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text.Write(Serialize(it))
	s.text.WriteByte('\n')
	return nil
}

// Text returns the accumulated log text, suitable for jobs.log_text.
func (s *DBSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// MultiSink fans one item out to every underlying sink, stopping at the
// first error.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink { return &MultiSink{sinks: sinks} }

func (m *MultiSink) Push(it Item) error {
	for _, s := range m.sinks {
		if err := s.Push(it); err != nil {
			return err
		}
	}
	return nil
}

// ParseLines splits r into lines, parses each with Parse, and pushes every
// resulting Item into sink in order (spec.md §4.6 run_job step 5).
func ParseLines(r io.Reader, sink Sink) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := sink.Push(Parse(scanner.Bytes())); err != nil {
			return xerrors.Errorf("pushing parsed log item: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Errorf("reading log stream: %w", err)
	}
	return nil
}
