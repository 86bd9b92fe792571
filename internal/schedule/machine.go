package schedule

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"pulseboard/internal/domain"
)

// Lifecycle events.
const (
	EventActivate = "activate"
	EventPause    = "pause"
)

// machineContext carries the config id for error messages.
type machineContext struct {
	ConfigID string
}

// Machine is the paused/active lifecycle of one report config.
type Machine struct {
	configID    string
	interpreter *statekit.Interpreter[machineContext]
}

var eventTargets = map[string]string{
	EventActivate: domain.ConfigActive,
	EventPause:    domain.ConfigPaused,
}

// NewMachine starts a machine in status. An empty status is treated as paused.
func NewMachine(configID, status string) (*Machine, error) {
	if status == "" {
		status = domain.ConfigPaused
	}
	if status != domain.ConfigActive && status != domain.ConfigPaused {
		return nil, fmt.Errorf("report config %s: unknown status %q", configID, status)
	}
	builder := statekit.NewMachine[machineContext]("report-config").
		WithInitial(statekit.StateID(status)).
		WithContext(machineContext{ConfigID: configID})

	builder.State(domain.ConfigPaused).
		On(EventActivate).Target(domain.ConfigActive).
		Done()

	builder.State(domain.ConfigActive).
		On(EventPause).Target(domain.ConfigPaused).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build report config machine: %w", err)
	}
	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return &Machine{configID: configID, interpreter: interp}, nil
}

// Current returns the current status.
func (m *Machine) Current() string {
	return string(m.interpreter.State().Value)
}

// Fire applies event. Firing the event whose target is the current status is a
// no-op, so activate and pause are idempotent.
func (m *Machine) Fire(event string) error {
	target, ok := eventTargets[event]
	if !ok {
		return fmt.Errorf("report config %s: unknown event %q", m.configID, event)
	}
	if m.Current() == target {
		return nil
	}
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	if m.Current() != target {
		return fmt.Errorf("report config %s: %s not allowed from %s", m.configID, event, m.Current())
	}
	return nil
}

// Transition is a convenience for one-shot transitions from status.
func Transition(configID, status, event string) (string, error) {
	m, err := NewMachine(configID, status)
	if err != nil {
		return "", err
	}
	if err := m.Fire(event); err != nil {
		return "", err
	}
	return m.Current(), nil
}
