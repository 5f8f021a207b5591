package engine

import (
	"fmt"
	"sync"
	"time"
)

// State identifies the engine lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateStreaming
	StatePausedSilence
	StateError
	StateStopping
)

// String returns the log spelling of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInitializing:
		return "INITIALIZING"
	case StateStreaming:
		return "STREAMING"
	case StatePausedSilence:
		return "PAUSED_SILENCE"
	case StateError:
		return "ERROR"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// phase is the closed set of lifecycle states. Each implementation carries
// only the data valid while that state is current, so stale fields cannot
// leak across a transition.
type phase interface {
	state() State
}

type idlePhase struct{}

type initializingPhase struct {
	// Noise-floor calibration progress in windows.
	calibrated int
	total      int
}

type streamingPhase struct {
	since time.Time
}

type pausedPhase struct {
	// since is the instant sustained silence was declared.
	since time.Time
}

type errorPhase struct {
	err error
	at  time.Time
}

type stoppingPhase struct{}

func (idlePhase) state() State         { return StateIdle }
func (initializingPhase) state() State { return StateInitializing }
func (streamingPhase) state() State    { return StateStreaming }
func (pausedPhase) state() State       { return StatePausedSilence }
func (errorPhase) state() State        { return StateError }
func (stoppingPhase) state() State     { return StateStopping }

// machine guards the current phase behind one mutex. Every move goes
// through transition, which enforces the lifecycle table; concurrent tasks
// therefore always observe a consistent phase.
type machine struct {
	mu  sync.Mutex
	cur phase
}

func newMachine() *machine {
	return &machine{cur: idlePhase{}}
}

// current returns the phase value in effect now.
func (m *machine) current() phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// state returns the discriminant of the current phase.
func (m *machine) state() State {
	return m.current().state()
}

// transition applies next if the lifecycle allows the move and returns the
// previous state. An illegal move leaves the phase untouched.
func (m *machine) transition(next phase) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to := m.cur.state(), next.state()
	if !legal(from, to) {
		return from, fmt.Errorf("engine: illegal transition %v -> %v", from, to)
	}
	m.cur = next
	return from, nil
}

// refresh replaces the phase data without changing state. Used to update
// calibration progress while initializing; a no-op if the state moved on.
func (m *machine) refresh(next phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur.state() == next.state() {
		m.cur = next
	}
}

// legal encodes the lifecycle table:
//
//	IDLE -> INITIALIZING -> STREAMING <-> PAUSED_SILENCE
//	ERROR reachable from every running state
//	INITIALIZING/STREAMING/PAUSED_SILENCE/ERROR -> STOPPING -> IDLE
func legal(from, to State) bool {
	if to == StateError {
		// A later failure never overwrites the first diagnostic, and a
		// stop in progress wins over a racing failure.
		return from != StateIdle && from != StateError && from != StateStopping
	}
	switch from {
	case StateIdle:
		return to == StateInitializing
	case StateInitializing:
		return to == StateStreaming || to == StateStopping
	case StateStreaming:
		return to == StatePausedSilence || to == StateStopping
	case StatePausedSilence:
		return to == StateStreaming || to == StateStopping
	case StateError:
		return to == StateStopping
	case StateStopping:
		return to == StateIdle
	default:
		return false
	}
}
