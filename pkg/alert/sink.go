// Package alert records state-change and failure events.
//
// A Sink appends plain timestamped lines to a durable log and mirrors each
// record to a console writer and to live subscribers. Records are never
// rewritten; retention and rotation are left to the host.
package alert

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vpn-sentinel/pkg/model"
)

// DefaultPath is the alert log location.
const DefaultPath = "/var/log/vpn-sentinel/alerts.log"

// Sink is an append-only alert log. It is safe for concurrent use.
type Sink struct {
	mu      sync.Mutex
	out     io.Writer
	console io.Writer
	closer  io.Closer
	last    time.Time
	now     func() time.Time
	subs    map[int]chan model.AlertRecord
	nextSub int
}

// New creates a sink writing to out and mirroring to console. Either may be nil.
func New(out, console io.Writer) *Sink {
	return &Sink{
		out:     out,
		console: console,
		now:     time.Now,
		subs:    make(map[int]chan model.AlertRecord),
	}
}

// Open creates the log file if needed and opens it for appending.
func Open(path string, console io.Writer) (*Sink, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create alert log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open alert log: %w", err)
	}
	s := New(f, console)
	s.closer = f
	return s, nil
}

// Record appends a record. Timestamps strictly increase within the process
// even if the wall clock steps backwards.
func (s *Sink) Record(severity model.Severity, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Nanosecond)
	}
	s.last = ts
	rec := model.AlertRecord{Severity: severity, Message: message, Timestamp: ts}
	line := rec.Line() + "\n"

	var err error
	if s.out != nil {
		if _, werr := io.WriteString(s.out, line); werr != nil {
			err = fmt.Errorf("append alert: %w", werr)
		}
	}
	if s.console != nil {
		_, _ = io.WriteString(s.console, line)
	}
	for id, ch := range s.subs {
		select {
		case ch <- rec:
		default:
			log.Printf("alert subscriber %d is slow, dropping record", id)
		}
	}
	return err
}

// Subscribe returns a channel receiving every subsequent record and a
// function that cancels the subscription.
func (s *Sink) Subscribe(buffer int) (<-chan model.AlertRecord, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan model.AlertRecord, buffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

// Close releases the log file and ends all subscriptions.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// ErrMalformed indicates a line that is not an alert record.
var ErrMalformed = errors.New("alert: malformed line")

// ParseLine parses a line written by Record.
func ParseLine(line string) (model.AlertRecord, error) {
	tsPart, rest, ok := strings.Cut(strings.TrimSpace(line), " [")
	if !ok {
		return model.AlertRecord{}, ErrMalformed
	}
	sev, msg, ok := strings.Cut(rest, "] ")
	if !ok {
		sev, ok = strings.CutSuffix(rest, "]")
		if !ok {
			return model.AlertRecord{}, ErrMalformed
		}
	}
	ts, err := time.Parse(time.RFC3339Nano, tsPart)
	if err != nil {
		return model.AlertRecord{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return model.AlertRecord{Severity: model.ParseSeverity(sev), Message: msg, Timestamp: ts}, nil
}

// ReadTail returns up to limit most recent records from the log at path,
// oldest first. Malformed lines are skipped. limit <= 0 returns everything.
func ReadTail(path string, limit int) ([]model.AlertRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var recs []model.AlertRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		rec, err := ParseLine(sc.Text())
		if err != nil {
			continue
		}
		recs = append(recs, rec)
		if limit > 0 && len(recs) > 2*limit {
			recs = append(recs[:0], recs[len(recs)-limit:]...)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs, nil
}
