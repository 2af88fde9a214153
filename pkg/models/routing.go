package models

import "time"

// DecisionType is the kind of human decision taken at a stage.
type DecisionType string

const (
	DecisionComplete DecisionType = "complete"
	DecisionReturn   DecisionType = "return"
	DecisionReject   DecisionType = "reject"
)

// Valid reports whether the decision is a recognized kind.
func (d DecisionType) Valid() bool {
	switch d {
	case DecisionComplete, DecisionReturn, DecisionReject:
		return true
	default:
		return false
	}
}

// TransitionType classifies a routing history entry.
type TransitionType string

const (
	TransitionSubmit   TransitionType = "submit"
	TransitionAdvance  TransitionType = "advance"
	TransitionReturn   TransitionType = "return"
	TransitionReject   TransitionType = "reject"
	TransitionComplete TransitionType = "complete"
)

// StageAction is the immutable record of one human decision at one node.
// It is never mutated after creation.
type StageAction struct {
	ID            string       `json:"id"`
	PackageID     string       `json:"package_id"    validate:"required"`
	NodeID        string       `json:"node_id"       validate:"required"`
	ActorID       string       `json:"actor_id"      validate:"required"`
	ActorOfficeID string       `json:"actor_office_id" validate:"required"`
	ActorPosition string       `json:"actor_position,omitempty"`
	Decision      DecisionType `json:"decision"      validate:"required"`
	Comment       string       `json:"comment,omitempty"`
	ReturnToNode  string       `json:"return_to_node,omitempty"`
	IPAddress     string       `json:"ip_address,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// StageCompletion marks one office's completion of an "all"-rule stage.
// Rows for a node are deleted when the package returns through it, so
// re-entry requires fresh completions.
type StageCompletion struct {
	PackageID     string    `json:"package_id"`
	NodeID        string    `json:"node_id"`
	OfficeID      string    `json:"office_id"`
	StageActionID string    `json:"stage_action_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// RoutingHistory is one entry of the append-only transition ledger. An empty
// FromNode marks the initial submit; an empty ToNode marks a terminal
// transition.
type RoutingHistory struct {
	ID            string         `json:"id"`
	PackageID     string         `json:"package_id"`
	FromNode      string         `json:"from_node"`
	ToNode        string         `json:"to_node"`
	Transition    TransitionType `json:"transition"`
	TriggeredByID string         `json:"triggered_by,omitempty"` // StageAction ID when human-initiated
	CreatedAt     time.Time      `json:"created_at"`
}
