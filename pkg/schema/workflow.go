package schema

// WorkflowDefinition is the loader-facing workflow format: a named, directed
// graph of states. Each state binds one action phrase; transitions carry
// optional guard expressions evaluated in declared order.
type WorkflowDefinition struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Start       string            `yaml:"start" json:"start"`
	Vars        map[string]any    `yaml:"vars,omitempty" json:"vars,omitempty"`
	States      []StateDefinition `yaml:"states" json:"states"`
}

// StateDefinition is one node of the workflow graph.
type StateDefinition struct {
	ID          string                 `yaml:"id" json:"id"`
	Action      string                 `yaml:"action" json:"action"`
	Transitions []TransitionDefinition `yaml:"transitions,omitempty" json:"transitions,omitempty"`
	End         bool                   `yaml:"end,omitempty" json:"end,omitempty"`
}

// TransitionDefinition is one outgoing edge. An empty When is the
// unconditional default; guards are raw expression text for the external
// evaluator, never interpreted by the core.
type TransitionDefinition struct {
	When string `yaml:"when,omitempty" json:"when,omitempty"`
	To   string `yaml:"to" json:"to"`
}

// State returns the state with the given ID, or nil.
func (d *WorkflowDefinition) State(id string) *StateDefinition {
	for i := range d.States {
		if d.States[i].ID == id {
			return &d.States[i]
		}
	}
	return nil
}

// Terminal reports whether the state ends the run: explicitly marked, or no
// outgoing transitions.
func (s *StateDefinition) Terminal() bool {
	return s.End || len(s.Transitions) == 0
}
