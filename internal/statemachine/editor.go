// Package statemachine implements the editing rules for chatbot state-machine configurations.
//
// Every operation works on an in-memory *models.StateMachineConfig and either applies the
// change or returns an error without mutating the configuration. The same rules run in the
// panel client before submission and in the API server before persisting.
package statemachine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

// normalizeState trims the name and fills defaults for optional fields.
func normalizeState(s models.State) models.State {
	s.Name = strings.TrimSpace(s.Name)
	if s.Criticality == "" {
		s.Criticality = models.CriticalityLow
	}
	if s.Actions == nil {
		s.Actions = []string{}
	}
	return s
}

func checkState(s models.State) error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Reason: ErrEmptyStateName}
	}
	if !models.IsValidCriticality(s.Criticality) {
		return &ValidationError{Field: "criticality", Reason: ErrInvalidCriticality, Value: string(s.Criticality)}
	}
	return nil
}

// AddState appends a state, rejecting empty or duplicate names.
func AddState(cfg *models.StateMachineConfig, s models.State) error {
	s = normalizeState(s)
	if err := checkState(s); err != nil {
		return err
	}
	if cfg.HasState(s.Name) {
		slog.Debug("statemachine.AddState: duplicate state rejected", "config", cfg.ID, "state", s.Name)
		return &ValidationError{Field: "name", Reason: ErrDuplicateState, Value: s.Name}
	}
	cfg.States = append(cfg.States, s)
	return nil
}

// UpdateState replaces the state called oldName. A rename is rejected when another state
// already has the new name; otherwise transitions and the initial state follow the rename.
func UpdateState(cfg *models.StateMachineConfig, oldName string, s models.State) error {
	idx := cfg.StateByName(oldName)
	if idx < 0 {
		return &ValidationError{Field: "name", Reason: ErrStateNotFound, Value: oldName}
	}
	s = normalizeState(s)
	if err := checkState(s); err != nil {
		return err
	}
	if s.Name != oldName {
		if other := cfg.StateByName(s.Name); other >= 0 && other != idx {
			return &ValidationError{Field: "name", Reason: ErrDuplicateState, Value: s.Name}
		}
		for i := range cfg.Transitions {
			if cfg.Transitions[i].FromState == oldName {
				cfg.Transitions[i].FromState = s.Name
			}
			if cfg.Transitions[i].ToState == oldName {
				cfg.Transitions[i].ToState = s.Name
			}
		}
		if cfg.InitialState == oldName {
			cfg.InitialState = s.Name
		}
		slog.Debug("statemachine.UpdateState: state renamed", "config", cfg.ID, "from", oldName, "to", s.Name)
	}
	cfg.States[idx] = s
	return nil
}

// DeleteState removes a state unless it is the initial state or a transition references it.
func DeleteState(cfg *models.StateMachineConfig, name string) error {
	idx := cfg.StateByName(name)
	if idx < 0 {
		return &ValidationError{Field: "name", Reason: ErrStateNotFound, Value: name}
	}
	if cfg.InitialState == name {
		return &ReferenceError{State: name, Reason: ErrInitialStateDeletion}
	}
	var refs []int
	for i, t := range cfg.Transitions {
		if t.FromState == name || t.ToState == name {
			refs = append(refs, i)
		}
	}
	if len(refs) > 0 {
		return &ReferenceError{State: name, Reason: ErrStateInUse, Transitions: refs}
	}
	cfg.States = append(cfg.States[:idx], cfg.States[idx+1:]...)
	return nil
}

// SetInitialState points the configuration at an existing state.
func SetInitialState(cfg *models.StateMachineConfig, name string) error {
	if !cfg.HasState(name) {
		return &ValidationError{Field: "initialState", Reason: ErrInitialStateUnknown, Value: name}
	}
	cfg.InitialState = name
	return nil
}

func checkTransition(cfg *models.StateMachineConfig, t models.Transition, skip int) error {
	if !cfg.HasState(t.FromState) {
		return &ValidationError{Field: "fromState", Reason: ErrUnknownFromState, Value: t.FromState}
	}
	if !cfg.HasState(t.ToState) {
		return &ValidationError{Field: "toState", Reason: ErrUnknownToState, Value: t.ToState}
	}
	for i, existing := range cfg.Transitions {
		if i != skip && existing.Matches(t) {
			return &ValidationError{
				Field:  "transition",
				Reason: ErrDuplicateTransition,
				Value:  fmt.Sprintf("%s -> %s [%s]", t.FromState, t.ToState, t.Condition),
			}
		}
	}
	return nil
}

func normalizeTransition(t models.Transition) models.Transition {
	t.FromState = strings.TrimSpace(t.FromState)
	t.ToState = strings.TrimSpace(t.ToState)
	t.Condition = strings.TrimSpace(t.Condition)
	return t
}

// AddTransition appends a transition between existing states, rejecting duplicate triples.
func AddTransition(cfg *models.StateMachineConfig, t models.Transition) error {
	t = normalizeTransition(t)
	if err := checkTransition(cfg, t, -1); err != nil {
		return err
	}
	cfg.Transitions = append(cfg.Transitions, t)
	return nil
}

// UpdateTransition replaces the transition at index.
func UpdateTransition(cfg *models.StateMachineConfig, index int, t models.Transition) error {
	if index < 0 || index >= len(cfg.Transitions) {
		return &ValidationError{Field: fmt.Sprintf("transitions[%d]", index), Reason: ErrTransitionNotFound}
	}
	t = normalizeTransition(t)
	if err := checkTransition(cfg, t, index); err != nil {
		return err
	}
	cfg.Transitions[index] = t
	return nil
}

// DeleteTransition removes the transition at index.
func DeleteTransition(cfg *models.StateMachineConfig, index int) error {
	if index < 0 || index >= len(cfg.Transitions) {
		return &ValidationError{Field: fmt.Sprintf("transitions[%d]", index), Reason: ErrTransitionNotFound}
	}
	cfg.Transitions = append(cfg.Transitions[:index], cfg.Transitions[index+1:]...)
	return nil
}

// Normalize trims state names, fills default criticality and replaces nil slices,
// the same clean-up AddState applies, so submitted configurations compare equal to edited ones.
func Normalize(cfg *models.StateMachineConfig) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.InitialState = strings.TrimSpace(cfg.InitialState)
	if cfg.States == nil {
		cfg.States = []models.State{}
	}
	for i := range cfg.States {
		cfg.States[i] = normalizeState(cfg.States[i])
	}
	if cfg.Transitions == nil {
		cfg.Transitions = []models.Transition{}
	}
	for i := range cfg.Transitions {
		cfg.Transitions[i] = normalizeTransition(cfg.Transitions[i])
	}
}

// Validate runs every save-time rule and reports all violations at once.
func Validate(cfg *models.StateMachineConfig) error {
	var errs []*ValidationError
	add := func(field string, reason error, value string) {
		errs = append(errs, &ValidationError{Field: field, Reason: reason, Value: value})
	}

	if strings.TrimSpace(cfg.Name) == "" {
		add("name", models.ErrEmptyName, "")
	} else if len(cfg.Name) > models.MaxNameLength {
		add("name", models.ErrNameTooLong, "")
	}
	if len(cfg.States) == 0 {
		add("states", ErrNoStates, "")
	}

	seen := make(map[string]int, len(cfg.States))
	for i, s := range cfg.States {
		field := fmt.Sprintf("states[%d]", i)
		if strings.TrimSpace(s.Name) == "" {
			add(field+".name", ErrEmptyStateName, "")
			continue
		}
		if _, dup := seen[s.Name]; dup {
			add(field+".name", ErrDuplicateState, s.Name)
		} else {
			seen[s.Name] = i
		}
		if s.Criticality != "" && !models.IsValidCriticality(s.Criticality) {
			add(field+".criticality", ErrInvalidCriticality, string(s.Criticality))
		}
		if len(s.Instructions) > models.MaxInstructionsLength {
			add(field+".instructions", models.ErrInstructionsTooLong, "")
		}
	}

	if cfg.InitialState == "" {
		add("initialState", ErrMissingInitialState, "")
	} else if _, ok := seen[cfg.InitialState]; !ok {
		add("initialState", ErrInitialStateUnknown, cfg.InitialState)
	}

	for i, t := range cfg.Transitions {
		field := fmt.Sprintf("transitions[%d]", i)
		if _, ok := seen[t.FromState]; !ok {
			add(field+".fromState", ErrUnknownFromState, t.FromState)
		}
		if _, ok := seen[t.ToState]; !ok {
			add(field+".toState", ErrUnknownToState, t.ToState)
		}
		for j := 0; j < i; j++ {
			if cfg.Transitions[j].Matches(t) {
				add(field, ErrDuplicateTransition, fmt.Sprintf("same as transitions[%d]", j))
				break
			}
		}
	}

	if len(errs) > 0 {
		slog.Debug("statemachine.Validate: configuration rejected", "config", cfg.ID, "violations", len(errs))
		return &AggregateError{Errors: errs}
	}
	return nil
}

// UnreachableStates lists states that no transition path from the initial state reaches.
// It is advisory only; saves never depend on it.
func UnreachableStates(cfg *models.StateMachineConfig) []string {
	if !cfg.HasState(cfg.InitialState) {
		return nil
	}
	adj := make(map[string][]string)
	for _, t := range cfg.Transitions {
		adj[t.FromState] = append(adj[t.FromState], t.ToState)
	}
	visited := map[string]bool{cfg.InitialState: true}
	queue := []string{cfg.InitialState}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adj[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	var out []string
	for _, s := range cfg.States {
		if !visited[s.Name] {
			out = append(out, s.Name)
		}
	}
	return out
}
