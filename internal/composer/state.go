// File: internal/composer/state.go
package composer

import "fmt"

// State is the progress of a report generation.
type State int

const (
	StateIdle State = iota
	StateResolvingTab
	StateCapturingPage
	StateCapturingNetwork
	StateCapturingScreenshot
	StateAssembling
	StatePersisting
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingTab:
		return "resolving_tab"
	case StateCapturingPage:
		return "capturing_page"
	case StateCapturingNetwork:
		return "capturing_network"
	case StateCapturingScreenshot:
		return "capturing_screenshot"
	case StateAssembling:
		return "assembling"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Class is the visual class of a status message.
type Class string

const (
	ClassInfo    Class = ""
	ClassSuccess Class = "success"
	ClassError   Class = "error"
)

// Status is one update of the user-facing status line.
type Status struct {
	State   State
	Message string
	Class   Class
}

// StatusFunc receives status line updates.
type StatusFunc func(Status)
