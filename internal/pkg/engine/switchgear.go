package engine

import (
	"fmt"
	"strings"

	"github.com/ohowland/baysim/internal/pkg/topology"
)

// Command is an operator switching instruction.
type Command int

// Commands.
const (
	OpenCmd Command = iota
	CloseCmd
)

func (c Command) String() string {
	if c == CloseCmd {
		return "CLOSE"
	}
	return "OPEN"
}

// MarshalText encodes the command by name.
func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes OPEN or CLOSE, case insensitive.
func (c *Command) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "OPEN":
		*c = OpenCmd
	case "CLOSE":
		*c = CloseCmd
	default:
		return fmt.Errorf("unknown command %q", string(b))
	}
	return nil
}

// ParseCommand decodes s as a Command.
func ParseCommand(s string) (Command, error) {
	var c Command
	err := c.UnmarshalText([]byte(s))
	return c, err
}

type switchIn struct {
	command Command
	trip    bool
}

// switchState is one position of a switching device. OPEN and CLOSED follow
// operator commands; TRIPPED is only entered from CLOSED by protection and is
// left only by replacing the node set.
type switchState interface {
	name() string
	transition(switchIn) switchState
	action() topology.SwitchState
}

type openState struct{}

func (openState) name() string {
	return "Open State"
}

func (openState) transition(in switchIn) switchState {
	if !in.trip && in.command == CloseCmd {
		return closedState{}
	}
	return openState{}
}

func (openState) action() topology.SwitchState {
	return topology.Open
}

type closedState struct{}

func (closedState) name() string {
	return "Closed State"
}

func (closedState) transition(in switchIn) switchState {
	if in.trip {
		return trippedState{}
	}
	if in.command == OpenCmd {
		return openState{}
	}
	return closedState{}
}

func (closedState) action() topology.SwitchState {
	return topology.Closed
}

type trippedState struct{}

func (trippedState) name() string {
	return "Tripped State"
}

func (trippedState) transition(switchIn) switchState {
	return trippedState{}
}

func (trippedState) action() topology.SwitchState {
	return topology.Tripped
}

func stateOf(s topology.SwitchState) switchState {
	switch s {
	case topology.Closed:
		return closedState{}
	case topology.Tripped:
		return trippedState{}
	}
	return openState{}
}
