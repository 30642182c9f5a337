package vm

import "fmt"

// Action is the control transfer an instruction asks the Machine to
// perform. The set is closed; Machine.Run is the only consumer.
type Action uint8

const (
	// ActionContinue proceeds with the next instruction.
	ActionContinue Action = iota
	// ActionEnterContext starts running the context just pushed.
	ActionEnterContext
	// ActionReturn pops the current context, handing the pending value to
	// the parent's return register.
	ActionReturn
	// ActionThrow unwinds to the nearest covering catch entry.
	ActionThrow
	// ActionTerminate ends the process.
	ActionTerminate
	// ActionSuspend ends the slice; the process is requeued.
	ActionSuspend
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionEnterContext:
		return "enter-context"
	case ActionReturn:
		return "return"
	case ActionThrow:
		return "throw"
	case ActionTerminate:
		return "terminate"
	case ActionSuspend:
		return "suspend"
	default:
		return fmt.Sprintf("Action(%d)", a)
	}
}

// Outcome is what a slice on the Machine means for the scheduler.
type Outcome uint8

const (
	// OutcomeRequeue means the process must be scheduled again.
	OutcomeRequeue Outcome = iota
	// OutcomeTerminated means the process finished.
	OutcomeTerminated
)

func (o Outcome) String() string {
	if o == OutcomeTerminated {
		return "terminated"
	}
	return "requeue"
}
