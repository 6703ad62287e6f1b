// Package models defines state-machine configuration and conversation session structures.
package models

import "time"

// Criticality ranks how carefully the chatbot must handle a state.
type Criticality string

const (
	CriticalityLow    Criticality = "low"
	CriticalityMedium Criticality = "medium"
	CriticalityHigh   Criticality = "high"
)

// IsValidCriticality checks if the given criticality is supported.
func IsValidCriticality(c Criticality) bool {
	switch c {
	case CriticalityLow, CriticalityMedium, CriticalityHigh:
		return true
	default:
		return false
	}
}

// State is a named step of a chatbot flow with natural-language instructions for the engine.
type State struct {
	Name         string      `json:"name"`
	Instructions string      `json:"instructions"`
	Actions      []string    `json:"actions"`
	Criticality  Criticality `json:"criticality"`
}

// Transition represents a legal move between two states.
type Transition struct {
	FromState string `json:"fromState"`
	ToState   string `json:"toState"`
	Condition string `json:"condition"` // natural-language condition evaluated by the engine
}

// Matches reports whether two transitions have the same (from, to, condition) triple.
func (t Transition) Matches(other Transition) bool {
	return t.FromState == other.FromState && t.ToState == other.ToState && t.Condition == other.Condition
}

// StateMachineConfig is an admin-authored chatbot flow consumed by the external execution engine.
type StateMachineConfig struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	InitialState string       `json:"initialState"`
	States       []State      `json:"states"`
	Transitions  []Transition `json:"transitions"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// StateByName returns the index of the named state, or -1.
func (c *StateMachineConfig) StateByName(name string) int {
	for i := range c.States {
		if c.States[i].Name == name {
			return i
		}
	}
	return -1
}

// HasState reports whether a state with the given name exists.
func (c *StateMachineConfig) HasState(name string) bool {
	return c.StateByName(name) >= 0
}

// Clone returns a deep copy so editors can work on a draft.
func (c *StateMachineConfig) Clone() *StateMachineConfig {
	out := *c
	out.States = make([]State, len(c.States))
	for i, s := range c.States {
		s.Actions = append([]string(nil), s.Actions...)
		out.States[i] = s
	}
	out.Transitions = append([]Transition(nil), c.Transitions...)
	return &out
}

// SessionStatus tracks whether the engine should keep driving a session.
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusTerminated SessionStatus = "terminated"
)

// HistoryEntry records one state visited by a conversation session.
type HistoryEntry struct {
	State      string      `json:"state"`
	Timestamp  time.Time   `json:"timestamp"`
	Transition *Transition `json:"transition,omitempty"`
}

// ConversationSession is a live run of a state-machine configuration for one end-user chat.
// The external engine creates and advances it; the panel only displays and terminates it.
type ConversationSession struct {
	ID             string                 `json:"id"`
	StateMachineID string                 `json:"stateMachineId"`
	CurrentState   string                 `json:"currentState"`
	Status         SessionStatus          `json:"status"`
	Context        map[string]interface{} `json:"context,omitempty"`
	History        []HistoryEntry         `json:"history"`
	StartedAt      time.Time              `json:"startedAt"`
	LastUpdatedAt  time.Time              `json:"lastUpdatedAt"`
}

// IsActive reports whether the session is still being driven by the engine.
func (s *ConversationSession) IsActive() bool {
	return s.Status == "" || s.Status == SessionStatusActive
}
