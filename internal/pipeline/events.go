package pipeline

import "time"

// EventType names a pipeline stage notification.
type EventType string

const (
	EventLoadStarted     EventType = "load_started"
	EventLoaded          EventType = "loaded"
	EventCompressStarted EventType = "compress_started"
	EventCompressed      EventType = "compressed"
	EventMetrics         EventType = "metrics_computed"
	EventAnalyzed        EventType = "analyzed"
	EventFailed          EventType = "failed"
	EventReset           EventType = "reset"
)

// Event is delivered to the hook on every stage transition.
type Event struct {
	Type      EventType `json:"type"`
	State     string    `json:"state"`
	Path      string    `json:"path,omitempty"`
	ResultID  string    `json:"result_id,omitempty"`
	Quality   int       `json:"quality,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventHook receives pipeline events. It runs on the calling goroutine and must not block.
type EventHook func(Event)
