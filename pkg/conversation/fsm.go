package conversation

import "bugtriage/pkg/report"

// State is a named step of the questionnaire.
type State string

const (
	AwaitingSummary    State = "awaiting_summary"
	AwaitingPages      State = "awaiting_pages"
	AwaitingSteps      State = "awaiting_steps"
	AwaitingComponents State = "awaiting_components"
	Completed          State = "completed"
)

// InitialState is where every new session begins.
const InitialState = AwaitingSummary

var transitions = map[State]State{
	AwaitingSummary:    AwaitingPages,
	AwaitingPages:      AwaitingSteps,
	AwaitingSteps:      AwaitingComponents,
	AwaitingComponents: Completed,
}

var stateFields = map[State]string{
	AwaitingSummary:    report.FieldSummary,
	AwaitingPages:      report.FieldPages,
	AwaitingSteps:      report.FieldSteps,
	AwaitingComponents: report.FieldComponents,
}

// Next returns the state reached after the current field is answered.
// Terminal and unknown states have no successor.
func (s State) Next() (State, bool) {
	next, ok := transitions[s]
	return next, ok
}

// Field returns the question asked while in s.
func (s State) Field() (Field, bool) {
	name, ok := stateFields[s]
	if !ok {
		return Field{}, false
	}
	return fieldByName(name)
}

func (s State) Terminal() bool {
	return s == Completed
}

func (s State) String() string {
	return string(s)
}
