// Package session composes the timing registry, the event log, and the
// debug-file sink into the end-to-end "profile, log, flush to one report"
// workflow. One Session serves one logical owner, identified by a
// caller-supplied id.
package session

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/proflab/debugkit/debugctl"
	"github.com/proflab/debugkit/debugdir"
	"github.com/proflab/debugkit/recording"
	"github.com/proflab/debugkit/report"
	"github.com/proflab/debugkit/timing"
)

const eventTimestampFormat = "2006-01-02 15:04:05"

// A Session accumulates profiling summaries and event lines for one owner
// and flushes them as one report file through the sink. All methods are safe
// for concurrent use.
type Session struct {
	id          string
	registry    *timing.Registry
	sink        *debugdir.Sink
	logger      *log.Logger
	gate        *debugctl.Gate
	recorder    recording.Recorder
	reportEvery uint64

	lock           sync.Mutex
	profilingLines []string
	events         []string
	settledLines   uint64
	settledEvents  uint64
}

// Builder builds Sessions.
type Builder struct {
	id          string
	sink        *debugdir.Sink
	logger      *log.Logger
	gate        *debugctl.Gate
	recorder    recording.Recorder
	reportEvery uint64
}

// MakeBuilder creates a Builder with the default report interval of 20
// ticks.
func MakeBuilder() Builder {
	return Builder{
		reportEvery: 20,
	}
}

// WithID sets the owner id. An empty id is replaced by a generated one at
// build time.
func (b Builder) WithID(id string) Builder {
	b.id = id
	return b
}

// WithSink sets the debug-file sink the session flushes through. Required.
func (b Builder) WithSink(sink *debugdir.Sink) Builder {
	b.sink = sink
	return b
}

// WithLogger sets the logger used for operational messages.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithGate attaches the process-wide enable gate. A gated session does no
// work while the gate is disabled, and disabling the gate discards the
// session's accumulated state.
func (b Builder) WithGate(gate *debugctl.Gate) Builder {
	b.gate = gate
	return b
}

// WithRecorder attaches a structured recorder that receives one timing row
// per operation on every successful flush.
func (b Builder) WithRecorder(recorder recording.Recorder) Builder {
	b.recorder = recorder
	return b
}

// WithReportEvery sets the tick interval between periodic report flushes.
func (b Builder) WithReportEvery(n uint64) Builder {
	b.reportEvery = n
	return b
}

// Build builds the Session.
func (b Builder) Build() *Session {
	if b.sink == nil {
		panic("session requires a sink")
	}

	if b.reportEvery == 0 {
		panic("report interval must be positive")
	}

	s := &Session{
		id:          b.id,
		registry:    timing.NewRegistry(),
		sink:        b.sink,
		logger:      b.logger,
		gate:        b.gate,
		recorder:    b.recorder,
		reportEvery: b.reportEvery,
	}

	if s.id == "" {
		s.id = xid.New().String()
	}

	if s.logger == nil {
		s.logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	if s.gate != nil {
		s.gate.OnDisable(s.Clear)
	}

	if s.recorder != nil {
		ensureTimingTable(s.recorder)
	}

	return s
}

func ensureTimingTable(r recording.Recorder) {
	for _, name := range r.ListTables() {
		if name == recording.TimingTable {
			return
		}
	}

	r.CreateTable(recording.TimingTable, recording.TimingEntry{})
}

// ID returns the owner id of the session.
func (s *Session) ID() string {
	return s.id
}

// Registry returns the timing registry of the session.
func (s *Session) Registry() *timing.Registry {
	return s.registry
}

func (s *Session) gateClosed() bool {
	return s.gate != nil && !s.gate.Enabled()
}

// StartProfiling marks the start of one execution of the named operation.
func (s *Session) StartProfiling(op string) {
	if s.gateClosed() {
		return
	}

	s.registry.Start(op)
}

// StopProfiling marks the end of one execution of the named operation and
// appends a summary line for the next report. The line reflects the
// operation's statistics at the time of the stop.
func (s *Session) StopProfiling(op string) {
	if s.gateClosed() {
		return
	}

	s.registry.Stop(op)

	line := report.FormatTimingLine(timing.TimingStats{
		Name:        op,
		CallCount:   s.registry.CallCount(op),
		AverageTime: s.registry.AverageTime(op),
	})

	s.lock.Lock()
	s.profilingLines = append(s.profilingLines, line)
	s.lock.Unlock()
}

// Scope starts timing the named operation and returns the scope that ends
// the measurement, for use with defer. Unlike StopProfiling, ending a scope
// does not append a summary line.
func (s *Session) Scope(op string) *timing.Scope {
	return s.registry.Scope(op)
}

// LogEvent timestamps the message and appends it to the event log.
func (s *Session) LogEvent(msg string) {
	if s.gateClosed() {
		return
	}

	formatted := fmt.Sprintf("[%s] %s",
		time.Now().Format(eventTimestampFormat), msg)

	s.lock.Lock()
	s.events = append(s.events, formatted)
	s.lock.Unlock()

	s.logger.Printf("event logged: %s", formatted)
}

// Flush formats the buffered profiling lines and events into one report and
// submits it to the sink. The buffered data is removed only after the write
// succeeds; on failure it is retained, so a later Flush can retry it. The
// returned future resolves with the report file path, and by the time it
// resolves the buffers have been settled either way. Flush may be called
// again before the future resolves; each flush settles only the entries it
// captured.
func (s *Session) Flush() *debugdir.Future[string] {
	s.lock.Lock()
	lines := append([]string(nil), s.profilingLines...)
	events := append([]string(nil), s.events...)
	linesEnd := s.settledLines + uint64(len(lines))
	eventsEnd := s.settledEvents + uint64(len(events))
	s.lock.Unlock()

	rep := report.Report{
		Title:       "Debug Data Report",
		Owner:       s.id,
		GeneratedAt: time.Now(),
		Lines:       lines,
		Events:      events,
	}

	return s.sink.WriteThen(s.id+"_debug", rep.Format(),
		func(path string) {
			s.settleFlushed(linesEnd, eventsEnd)
			s.recordSnapshot(rep.GeneratedAt)
			s.logger.Printf("debug data saved to %s", path)
		})
}

// settleFlushed drops the buffer prefixes a completed flush wrote. The ends
// are absolute positions, so an overlapping flush or an intervening Clear
// never makes a settle drop an entry it did not write.
func (s *Session) settleFlushed(linesEnd, eventsEnd uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.profilingLines, s.settledLines =
		dropSettled(s.profilingLines, s.settledLines, linesEnd)
	s.events, s.settledEvents =
		dropSettled(s.events, s.settledEvents, eventsEnd)
}

// dropSettled removes buffered entries up to the absolute position end.
// Entries below the settled watermark are already gone and are not dropped
// again.
func dropSettled(buf []string, settled, end uint64) ([]string, uint64) {
	if end <= settled {
		return buf, settled
	}

	drop := end - settled
	if drop > uint64(len(buf)) {
		drop = uint64(len(buf))
	}

	return buf[drop:], settled + drop
}

// recordSnapshot inserts one structured row per operation into the attached
// recorder. It runs on the sink worker, so inserts are serialized.
func (s *Session) recordSnapshot(at time.Time) {
	if s.recorder == nil {
		return
	}

	for _, stat := range s.registry.Snapshot() {
		if stat.CallCount == 0 {
			continue
		}

		s.recorder.InsertData(recording.TimingTable,
			recording.TimingEntry{
				Session:       s.id,
				Operation:     stat.Name,
				CallCount:     stat.CallCount,
				TotalMillis:   stat.TotalMillis(),
				AverageMillis: stat.AverageMillis(),
				RecordedAt:    at.Format(eventTimestampFormat),
			})
	}

	s.recorder.Flush()
}

// Clear discards the buffered profiling lines, the event log, and the
// registry state without writing anything.
func (s *Session) Clear() {
	s.lock.Lock()
	s.settledLines += uint64(len(s.profilingLines))
	s.settledEvents += uint64(len(s.events))
	s.profilingLines = nil
	s.events = nil
	s.lock.Unlock()

	s.registry.Clear()
}

// EventCount returns the number of buffered event lines.
func (s *Session) EventCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.events)
}

// ProfilingRecordCount returns the number of buffered profiling summary
// lines.
func (s *Session) ProfilingRecordCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.profilingLines)
}

// Tick is the host's periodic callback. Every reportEvery-th tick flushes a
// report, provided the gate is open and there is buffered data to report.
// The count is supplied by the host and must be monotonic.
func (s *Session) Tick(count uint64) {
	if s.gateClosed() {
		return
	}

	if count == 0 || count%s.reportEvery != 0 {
		return
	}

	s.lock.Lock()
	empty := len(s.profilingLines) == 0 && len(s.events) == 0
	s.lock.Unlock()

	if empty {
		return
	}

	s.Flush()
}
