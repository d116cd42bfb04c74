// Package metrics pushes governance metrics and events to an external sink.
// All pushes are best-effort, at-most-once-delivery-attempted: failures are
// logged and swallowed, and a full queue drops the entry rather than block
// the request path.
package metrics

// Sink is the external metrics platform contract.
type Sink interface {
	// Push submits a single metric value.
	Push(name string, value float64, tags map[string]string)
	// PushEvent submits a discrete event such as an alert.
	PushEvent(title, text, severity string, tags map[string]string)
	// Close flushes queued entries and stops the sink worker.
	Close()
}

type nopSink struct{}

func (nopSink) Push(string, float64, map[string]string)             {}
func (nopSink) PushEvent(string, string, string, map[string]string) {}
func (nopSink) Close()                                              {}

// NewNop returns a Sink that discards everything.
func NewNop() Sink { return nopSink{} }
