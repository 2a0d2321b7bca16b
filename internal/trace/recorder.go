package trace

import "sync"

// Sink receives step outcomes from the build pipeline. A failing or
// panicking sink never changes a build result.
type Sink interface {
	Record(event TraceEvent)
}

// NopSink is used when no trace file was requested.
type NopSink struct{}

func (NopSink) Record(TraceEvent) {}

// SafeRecord hands event to s, ignoring a nil sink and recovering from a
// panic inside Record.
func SafeRecord(s Sink, event TraceEvent) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder keeps the events of one build run in memory until the trace file
// is written. Targets compiled concurrently may share it.
type Recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event TraceEvent) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Snapshot copies the events recorded so far.
func (r *Recorder) Snapshot() []TraceEvent {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Reset drops the recorded events so the recorder can be reused.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Trace returns the canonical trace of the recorded events under
// pipelineHash.
func (r *Recorder) Trace(pipelineHash string) BuildTrace {
	tr := BuildTrace{PipelineHash: pipelineHash, Events: r.Snapshot()}
	tr.Canonicalize()
	return tr
}
