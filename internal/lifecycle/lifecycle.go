// Package lifecycle holds the milestone state machine. A milestone is
// created active and may be closed once; there is no reopen.
package lifecycle

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"milestone-service/internal/model"
)

const EventClose = "close"

// MilestoneContext is the machine context.
type MilestoneContext struct {
	MilestoneID int64
}

type Machine struct {
	milestoneID int64
	interpreter *statekit.Interpreter[MilestoneContext]
}

// New builds a machine positioned at the milestone's stored state.
func New(m *model.Milestone) (*Machine, error) {
	switch m.State {
	case model.StateActive, model.StateClosed:
	default:
		return nil, fmt.Errorf("milestone %d has unknown state %q", m.ID, m.State)
	}

	builder := statekit.NewMachine[MilestoneContext]("milestone-lifecycle").
		WithInitial(statekit.StateID(m.State)).
		WithContext(MilestoneContext{MilestoneID: m.ID})

	builder.State(statekit.StateID(model.StateActive)).
		On(EventClose).Target(statekit.StateID(model.StateClosed)).
		Done()

	builder.State(statekit.StateID(model.StateClosed)).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build milestone state machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &Machine{milestoneID: m.ID, interpreter: interpreter}, nil
}

// Transition applies event; an event with no transition from the current
// state leaves it unchanged and returns ErrNotActive.
func (sm *Machine) Transition(event string) error {
	before := sm.Current()
	sm.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	if sm.Current() != before {
		return nil
	}
	return fmt.Errorf("milestone %d cannot %s while %s: %w", sm.milestoneID, event, before, model.ErrNotActive)
}

func (sm *Machine) Current() model.MilestoneState {
	return model.MilestoneState(sm.interpreter.State().Value)
}

// CanClose reports whether a close would be accepted, without applying it.
func CanClose(m *model.Milestone) error {
	sm, err := New(m)
	if err != nil {
		return err
	}
	return sm.Transition(EventClose)
}
