package engine

import (
	"time"

	"github.com/google/uuid"
)

// Event is one applied mutation together with its structurally derived
// inverse. Events are immutable once appended; only Undo removes them,
// and only from the tail.
type Event struct {
	ID        string
	Timestamp time.Time
	Op        Op
	Inverse   Op
	Summary   string
}

// Checkpoint marks a position in the event log. It holds no state of
// its own; resolving a checkpoint back to a workbook state is the
// caller's job using the recorded log length.
type Checkpoint struct {
	ID         string    `json:"id"`
	EventCount int       `json:"event_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// Undo pops the most recent event and replays its inverse. It is
// strictly LIFO and single-level per call; the popped event's forward
// form is discarded, so there is no redo. Returns nil when the log is
// empty.
func (wb *Workbook) Undo() (*Event, error) {
	if len(wb.Events) == 0 {
		return nil, nil
	}
	ev := wb.Events[len(wb.Events)-1]
	wb.Events = wb.Events[:len(wb.Events)-1]
	if err := wb.applyInternal(ev.Inverse); err != nil {
		return nil, err
	}
	return &ev, nil
}

// AddCheckpoint records the current log length under the given id, or a
// generated one when id is empty.
func (wb *Workbook) AddCheckpoint(id string) Checkpoint {
	if id == "" {
		id = uuid.NewString()
	}
	cp := Checkpoint{
		ID:         id,
		EventCount: len(wb.Events),
		Timestamp:  time.Now(),
	}
	wb.Checkpoints = append(wb.Checkpoints, cp)
	return cp
}
