// Package models defines the core domain models for package routing.
package models

import (
	"fmt"
	"time"
)

// PackageStatus represents the lifecycle state of a package.
type PackageStatus string

const (
	PackageStatusDraft     PackageStatus = "draft"      // Editable, not yet routed
	PackageStatusInRouting PackageStatus = "in_routing" // Moving through the workflow graph
	PackageStatusCompleted PackageStatus = "completed"  // Workflow finished successfully
	PackageStatusCancelled PackageStatus = "cancelled"  // Rejected or withdrawn
	PackageStatusOnHold    PackageStatus = "on_hold"    // Paused, re-enterable to in_routing
	PackageStatusArchived  PackageStatus = "archived"   // Retained for records only
)

// PackagePriority represents the urgency of a package.
type PackagePriority string

const (
	PriorityLow    PackagePriority = "low"
	PriorityNormal PackagePriority = "normal"
	PriorityUrgent PackagePriority = "urgent"
)

// Package is the routable unit: a folder of tabbed, versioned documents
// moving through a workflow template.
type Package struct {
	ID                  string          `json:"id"`
	OrganizationID      string          `json:"organization_id"    validate:"required"`
	TemplateID          string          `json:"template_id,omitempty"`
	Title               string          `json:"title"              validate:"required,min=1"`
	ReferenceNumber     string          `json:"reference_number"`
	Status              PackageStatus   `json:"status"             validate:"required"`
	Priority            PackagePriority `json:"priority"`
	PriorityDeadline    *time.Time      `json:"priority_deadline,omitempty"`
	OriginatorID        string          `json:"originator_id"      validate:"required"`
	OriginatingOfficeID string          `json:"originating_office_id" validate:"required"`
	CurrentNode         string          `json:"current_node"` // Empty unless status is in_routing
	IntegrityViolation  bool            `json:"integrity_violation"`
	Tabs                []*Tab          `json:"tabs,omitempty"`
	SubmittedAt         *time.Time      `json:"submitted_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	ArchivedAt          *time.Time      `json:"archived_at,omitempty"`
	ArchivedBy          string          `json:"archived_by,omitempty"`
	ArchiveReason       string          `json:"archive_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Tab returns the tab with the given identifier, or nil.
func (p *Package) Tab(identifier string) *Tab {
	for _, tab := range p.Tabs {
		if tab.Identifier == identifier {
			return tab
		}
	}

	return nil
}

// IsTerminal reports whether the package reached a final routing state.
func (p *Package) IsTerminal() bool {
	return p.Status == PackageStatusCompleted || p.Status == PackageStatusCancelled
}

// FormatReferenceNumber builds the persisted reference number
// {ORG_CODE}-{YEAR}-{5-digit sequence}.
func FormatReferenceNumber(orgCode string, year, sequence int) string {
	return fmt.Sprintf("%s-%d-%05d", orgCode, year, sequence)
}

// ReferencePrefix is the per-(org, year) prefix reference sequences are
// scoped to.
func ReferencePrefix(orgCode string, year int) string {
	return fmt.Sprintf("%s-%d-", orgCode, year)
}
