// Package progress defines the closed set of events a synchronization run
// emits, and the Emitter interface its consumers implement. The "type" field
// discriminates events on the wire.
package progress

import (
	"sync"

	"rate_change_notifier/internal/domain/clio"
)

// Type discriminates event variants on the wire.
type Type string

const (
	TypeProgress       Type = "progress"
	TypeMatterStart    Type = "matter-start"
	TypeMatterComplete Type = "matter-complete"
	TypeComplete       Type = "complete"
	TypeError          Type = "error"
)

// Event is the closed union of progress event variants. The unexported
// method keeps the set closed to this package.
type Event interface {
	Kind() Type
	sealed()
}

// Tally is the running outcome count carried by each MatterComplete.
type Tally struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// Progress is a coarse-grained phase change ("Updating database", ...).
type Progress struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

// MatterStart announces that one matter's processing has begun.
type MatterStart struct {
	Type          Type   `json:"type"`
	Index         int    `json:"index"`
	MatterID      string `json:"matter_id"`
	DisplayNumber string `json:"display_number"`
	Total         int    `json:"total"`
}

// MatterComplete reports one matter's outcome with the running tally.
type MatterComplete struct {
	Type          Type   `json:"type"`
	MatterID      string `json:"matter_id"`
	DisplayNumber string `json:"display_number"`
	Success       bool   `json:"success"`
	Skipped       bool   `json:"skipped,omitempty"`
	Error         string `json:"error,omitempty"`
	Tally         Tally  `json:"tally"`
}

// Complete is the terminal event for a run; exactly one is emitted, last.
type Complete struct {
	Type   Type             `json:"type"`
	Result clio.BatchResult `json:"result"`
}

// Error reports an unrecoverable condition (auth failure, missing
// configuration). The run still ends with a Complete carrying the degraded
// result.
type Error struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

func NewProgress(message string) Progress {
	return Progress{Type: TypeProgress, Message: message}
}

func NewMatterStart(index int, matterID, displayNumber string, total int) MatterStart {
	return MatterStart{Type: TypeMatterStart, Index: index, MatterID: matterID, DisplayNumber: displayNumber, Total: total}
}

func NewMatterComplete(matterID, displayNumber string, outcome clio.MatterSyncOutcome, tally Tally) MatterComplete {
	return MatterComplete{
		Type:          TypeMatterComplete,
		MatterID:      matterID,
		DisplayNumber: displayNumber,
		Success:       outcome.Success,
		Skipped:       outcome.Skipped,
		Error:         outcome.Error,
		Tally:         tally,
	}
}

func NewComplete(result clio.BatchResult) Complete {
	return Complete{Type: TypeComplete, Result: result}
}

func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

func (Progress) Kind() Type       { return TypeProgress }
func (MatterStart) Kind() Type    { return TypeMatterStart }
func (MatterComplete) Kind() Type { return TypeMatterComplete }
func (Complete) Kind() Type       { return TypeComplete }
func (Error) Kind() Type          { return TypeError }

func (Progress) sealed()       {}
func (MatterStart) sealed()    {}
func (MatterComplete) sealed() {}
func (Complete) sealed()       {}
func (Error) sealed()          {}

// Emitter receives events in the exact order they are produced. A run has
// exactly one producer; implementations need not be safe for concurrent use.
type Emitter interface {
	Emit(e Event)
}

type discard struct{}

func (discard) Emit(Event) {}

// Discard swallows all events; used by the synchronous endpoints, which only
// care about the final BatchResult.
var Discard Emitter = discard{}

// Recorder accumulates events in memory. Used by tests and anywhere a run's
// full event sequence needs inspecting after the fact.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns the recorded sequence in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
