package capture

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an event does not apply to the
// current state.
var ErrInvalidTransition = errors.New("invalid transition")

// Status is the position of a pipeline in its lifecycle
type Status int

const (
	Idle Status = iota
	Acquiring
	Extracting
	Analyzing
	Ready
	Saved
	Discarded
	Errored
)

var statusNames = [...]string{
	Idle:       "Idle",
	Acquiring:  "Acquiring",
	Extracting: "Extracting",
	Analyzing:  "Analyzing",
	Ready:      "Ready",
	Saved:      "Saved",
	Discarded:  "Discarded",
	Errored:    "Errored",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText renders the status by name for JSON payloads
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == Saved || s == Discarded
}

// Event is an input to the state machine
type Event int

const (
	EventStart Event = iota
	EventSucceeded
	EventCancelled
	EventFailed
	EventRetry
	EventSave
	EventDiscard
)

var eventNames = [...]string{
	EventStart:     "start",
	EventSucceeded: "succeeded",
	EventCancelled: "cancelled",
	EventFailed:    "failed",
	EventRetry:     "retry",
	EventSave:      "save",
	EventDiscard:   "discard",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Effect is the side effect the driver must perform after a transition
type Effect int

const (
	EffectNone Effect = iota
	EffectAcquire
	EffectExtract
	EffectAnalyze
	EffectPersist
	EffectRelease
)

// State is the pipeline state. Stage is set only when Status is Errored
// and names the stage that failed.
type State struct {
	Status Status `json:"status"`
	Stage  Status `json:"stage,omitempty"`
}

func (s State) String() string {
	if s.Status == Errored {
		return fmt.Sprintf("Errored(%s)", s.Stage)
	}
	return s.Status.String()
}

// stageEffect maps a working stage to the effect that runs it
func stageEffect(stage Status) Effect {
	switch stage {
	case Acquiring:
		return EffectAcquire
	case Extracting:
		return EffectExtract
	case Analyzing:
		return EffectAnalyze
	}
	return EffectNone
}

// Next is the transition function. It has no side effects: it returns the
// next state and the effect the caller must perform to make progress.
func (s State) Next(ev Event) (State, Effect, error) {
	switch s.Status {
	case Idle:
		if ev == EventStart {
			return State{Status: Acquiring}, EffectAcquire, nil
		}

	case Acquiring:
		switch ev {
		case EventSucceeded:
			return State{Status: Extracting}, EffectExtract, nil
		case EventCancelled:
			return State{Status: Idle}, EffectNone, nil
		case EventFailed:
			return State{Status: Errored, Stage: Acquiring}, EffectNone, nil
		}

	case Extracting:
		switch ev {
		case EventSucceeded:
			return State{Status: Analyzing}, EffectAnalyze, nil
		case EventFailed:
			return State{Status: Errored, Stage: Extracting}, EffectNone, nil
		}

	case Analyzing:
		switch ev {
		case EventSucceeded:
			return State{Status: Ready}, EffectNone, nil
		case EventFailed:
			return State{Status: Errored, Stage: Analyzing}, EffectNone, nil
		}

	case Ready:
		switch ev {
		case EventSave:
			return s, EffectPersist, nil
		case EventSucceeded:
			return State{Status: Saved}, EffectNone, nil
		case EventFailed:
			// A failed save keeps the result so the save can be retried.
			return s, EffectNone, nil
		case EventDiscard:
			return State{Status: Discarded}, EffectRelease, nil
		}

	case Errored:
		switch ev {
		case EventRetry:
			return State{Status: s.Stage}, stageEffect(s.Stage), nil
		case EventDiscard:
			return State{Status: Idle}, EffectRelease, nil
		}
	}

	return s, EffectNone, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, s)
}
