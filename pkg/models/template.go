package models

import "time"

// StageType is the kind of human action a stage node asks for.
type StageType string

const (
	StageTypeApprove    StageType = "APPROVE"
	StageTypeCoordinate StageType = "COORD"
	StageTypeConcur     StageType = "CONCUR"
)

// MultiOfficeRule governs how a stage with multiple assigned offices advances.
type MultiOfficeRule string

const (
	MultiOfficeRuleAny MultiOfficeRule = "any" // First completion advances
	MultiOfficeRuleAll MultiOfficeRule = "all" // Every assigned office must complete
)

// ActionType is the kind of automated step an action node performs.
type ActionType string

const (
	ActionTypeSendAlert ActionType = "send_alert"
	ActionTypeSendEmail ActionType = "send_email"
	ActionTypeComplete  ActionType = "complete"
	ActionTypeReject    ActionType = "reject"
	ActionTypeWait      ActionType = "wait"
	ActionTypeWebhook   ActionType = "webhook"
)

// ExecutionMode controls how an action node runs. Forked execution is a
// stored extension point; every node executes inline today.
type ExecutionMode string

const (
	ExecutionModeInline ExecutionMode = "inline"
	ExecutionModeForked ExecutionMode = "forked"
)

// ConnectionType classifies a directed edge between workflow nodes.
type ConnectionType string

const (
	ConnectionTypeDefault ConnectionType = "default"
	ConnectionTypeReturn  ConnectionType = "return"
	ConnectionTypeReject  ConnectionType = "reject"
)

// WorkflowTemplate is the reusable graph definition packages are routed
// against. A template with an empty OrganizationID is shared across
// organizations. Version only increases; it is bumped on every mutating save.
type WorkflowTemplate struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id,omitempty"` // Empty for shared templates
	Name           string           `json:"name"        validate:"required,min=3"`
	Description    string           `json:"description"`
	CanvasData     map[string]any   `json:"canvas_data,omitempty"` // Presentation only, never read by the engine
	Active         bool             `json:"active"`
	Version        int              `json:"version"`
	StageNodes     []*StageNode     `json:"stage_nodes"`
	ActionNodes    []*ActionNode    `json:"action_nodes"`
	Connections    []*NodeConnection `json:"connections"`
	CreatedBy      string           `json:"created_by,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// StageNode is a checkpoint requiring a human decision from one or more
// assigned offices.
type StageNode struct {
	NodeID           string          `json:"node_id"    validate:"required"`
	Name             string          `json:"name"       validate:"required,min=1"`
	StageType        StageType       `json:"stage_type" validate:"required"`
	AssignedOffices  []string        `json:"assigned_offices"`
	MultiOfficeRule  MultiOfficeRule `json:"multi_office_rule"`
	Optional         bool            `json:"optional"`
	TimeoutDays      int             `json:"timeout_days,omitempty"`
	EscalationOffice string          `json:"escalation_office,omitempty"`
	PositionX        int             `json:"position_x"`
	PositionY        int             `json:"position_y"`
}

// IsAssigned reports whether the office is assigned to this stage.
func (n *StageNode) IsAssigned(officeID string) bool {
	for _, id := range n.AssignedOffices {
		if id == officeID {
			return true
		}
	}

	return false
}

// ActionNode is an automated, non-human step executed inline during routing.
type ActionNode struct {
	NodeID        string         `json:"node_id"     validate:"required"`
	Name          string         `json:"name"        validate:"required,min=1"`
	ActionType    ActionType     `json:"action_type" validate:"required"`
	ExecutionMode ExecutionMode  `json:"execution_mode"`
	Config        map[string]any `json:"config"`
	PositionX     int            `json:"position_x"`
	PositionY     int            `json:"position_y"`
}

// NodeConnection is a directed, typed edge between two nodes of a template.
// The same node pair may carry multiple edges of different types.
type NodeConnection struct {
	FromNode       string         `json:"from_node" validate:"required"`
	ToNode         string         `json:"to_node"   validate:"required"`
	ConnectionType ConnectionType `json:"connection_type"`
}
