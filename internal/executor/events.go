package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies what an Event reports.
type EventKind string

const (
	EventStart   EventKind = "start"
	EventOutput  EventKind = "output"
	EventWarning EventKind = "warning"
	EventResult  EventKind = "result"
	EventDone    EventKind = "done"
)

// Event is one progress notification. Events from one operation share an
// OperationID and arrive in order.
type Event struct {
	OperationID string    `json:"operation_id"`
	Kind        EventKind `json:"kind"`
	Command     string    `json:"command,omitempty"`
	Stream      string    `json:"stream,omitempty"`
	Line        string    `json:"line,omitempty"`
	Success     bool      `json:"success,omitempty"`
	Message     string    `json:"message,omitempty"`
	Time        time.Time `json:"time"`
}

// emitter delivers events for one operation. A nil channel discards them.
// A send blocks until the subscriber receives or ctx is cancelled, so a
// subscriber withdraws by cancelling the context it passed in.
type emitter struct {
	ctx context.Context
	id  string
	ch  chan<- Event
}

func newEmitter(ctx context.Context, ch chan<- Event) *emitter {
	return &emitter{ctx: ctx, id: uuid.NewString(), ch: ch}
}

func (e *emitter) send(ev Event) {
	if e.ch == nil {
		return
	}
	ev.OperationID = e.id
	ev.Time = time.Now()
	select {
	case e.ch <- ev:
	case <-e.ctx.Done():
	}
}
