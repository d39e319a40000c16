package audit

import (
	"context"
	"sync"

	"github.com/nerrad567/lanwake/internal/waker"
)

// queueSize is the buffer of pending entries. Entries beyond it are
// dropped so recording never blocks a request.
const queueSize = 256

// Logger defines the logging interface used by the Writer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Writer queues entries and writes them serially from Run.
type Writer struct {
	repo   Repository
	queue  chan *Entry
	logger Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewWriter creates a Writer for repo. Call Run to start writing.
func NewWriter(repo Repository) *Writer {
	return &Writer{
		repo:   repo,
		queue:  make(chan *Entry, queueSize),
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for the Writer.
func (w *Writer) SetLogger(logger Logger) {
	w.logger = logger
}

// Repository returns the underlying repository for queries.
func (w *Writer) Repository() Repository {
	return w.repo
}

// Record queues e. It never blocks; when the queue is full the entry is
// dropped with a warning.
func (w *Writer) Record(e Entry) {
	select {
	case <-w.done:
		return
	default:
	}

	select {
	case w.queue <- &e:
	default:
		w.logger.Warn("audit queue full, dropping entry",
			"action", e.Action,
			"device_id", e.DeviceID,
		)
	}
}

// WakeAttempted records a wake attempt.
func (w *Writer) WakeAttempted(_ context.Context, a waker.Attempt) {
	dests := make([]string, len(a.Destinations))
	for i, d := range a.Destinations {
		dests[i] = d.String()
	}
	details := map[string]any{
		"label":        a.Device.Label,
		"destinations": dests,
		"result":       "sent",
	}
	if a.Err != nil {
		details["result"] = "failed"
		details["error"] = a.Err.Error()
	}
	w.Record(Entry{
		Action:    ActionWake,
		DeviceID:  a.Device.ID,
		Source:    SourceWaker,
		Details:   details,
		CreatedAt: a.At.UTC(),
	})
}

// Run writes queued entries until ctx is cancelled, then drains what is
// left. Entries recorded after Run returns are dropped.
func (w *Writer) Run(ctx context.Context) {
	defer w.closeOnce.Do(func() { close(w.done) })

	for {
		select {
		case e := <-w.queue:
			w.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-w.queue:
					w.write(e)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(e *Entry) {
	// Not tied to the run context so the final drain still writes.
	if err := w.repo.Create(context.Background(), e); err != nil {
		w.logger.Error("audit log write failed",
			"action", e.Action,
			"device_id", e.DeviceID,
			"error", err,
		)
	}
}
