// Package actions executes the automated action nodes a package chains
// through between human stages.
package actions

import (
	"context"
	"log/slog"

	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/notifications"
	"github.com/routepack/routepack/pkg/persistence"
)

// StageLookup resolves stage nodes of the template being routed. The routing
// graph satisfies it.
type StageLookup interface {
	StageByID(nodeID string) (*models.StageNode, bool)
}

// ExecutionContext carries everything one action node execution needs.
type ExecutionContext struct {
	Package *models.Package
	Node    *models.ActionNode

	// FromNode is the node the chain arrived from. When it is a stage node,
	// "current_office" recipients resolve to its assigned offices.
	FromNode string

	Stages StageLookup

	// TriggeredByID is the stage action that triggered the chain; empty when
	// the chain started at submit.
	TriggeredByID string
}

// Outcome reports how an action node execution affects the chain. Terminal
// outcomes stop chaining and carry the package's final status.
type Outcome struct {
	Terminal bool
	Status   models.PackageStatus
	Reason   string
}

// Executor dispatches action nodes by type. Side-effect handlers never fail
// the routing call: delivery errors are logged and swallowed.
type Executor struct {
	persistence persistence.Persistence
	notifier    notifications.Notifier
	email       notifications.EmailSender
	logger      *slog.Logger
}

func NewExecutor(
	p persistence.Persistence,
	notifier notifications.Notifier,
	email notifications.EmailSender,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		persistence: p,
		notifier:    notifier,
		email:       email,
		logger:      logger.With("module", "actions"),
	}
}

// Execute runs one action node and reports whether the chain stops here.
func (e *Executor) Execute(ctx context.Context, ec ExecutionContext) Outcome {
	logger := e.logger.With(
		"package_id", ec.Package.ID,
		"node_id", ec.Node.NodeID,
		"action_type", ec.Node.ActionType,
	)

	switch ec.Node.ActionType {
	case models.ActionTypeSendAlert:
		e.sendAlert(ctx, ec, logger)

		return Outcome{}
	case models.ActionTypeSendEmail:
		e.sendEmail(ctx, ec, logger)

		return Outcome{}
	case models.ActionTypeComplete:
		logger.InfoContext(ctx, "Action node completing package")

		return Outcome{Terminal: true, Status: models.PackageStatusCompleted}
	case models.ActionTypeReject:
		reason := configString(ec.Node.Config, "reason")
		logger.InfoContext(ctx, "Action node rejecting package", "reason", reason)

		return Outcome{Terminal: true, Status: models.PackageStatusCancelled, Reason: reason}
	case models.ActionTypeWait:
		logger.InfoContext(ctx, "Wait action node reached", "days", configInt(ec.Node.Config, "days"))

		return Outcome{}
	case models.ActionTypeWebhook:
		logger.InfoContext(ctx, "Webhook action node reached", "url", configString(ec.Node.Config, "url"))

		return Outcome{}
	}

	// Stored data can carry kinds this build does not know. Routing must not
	// fail on them.
	logger.WarnContext(ctx, "Unknown action type, ignoring")

	return Outcome{}
}

func (e *Executor) sendAlert(ctx context.Context, ec ExecutionContext, logger *slog.Logger) {
	message := configString(ec.Node.Config, "message")
	if message == "" {
		message = "Automated alert from workflow"
	}

	notification := notifications.Notification{
		PackageID: ec.Package.ID,
		Kind:      "workflow_alert",
		Title:     configStringDefault(ec.Node.Config, "title", "Workflow Alert"),
		Message:   message,
	}

	recipients := configStrings(ec.Node.Config, "recipients")
	if len(recipients) == 0 {
		recipients = []string{"originator"}
	}

	for _, recipient := range recipients {
		switch recipient {
		case "originator":
			e.notifier.NotifyUser(ctx, ec.Package.OriginatorID, notification)
		case "current_office":
			stage, ok := ec.Stages.StageByID(ec.FromNode)
			if !ok {
				logger.WarnContext(ctx, "current_office recipient without a stage context", "from_node", ec.FromNode)

				continue
			}

			for _, officeID := range stage.AssignedOffices {
				e.notifier.NotifyOffice(ctx, officeID, notification)
			}
		default:
			e.notifier.NotifyUser(ctx, recipient, notification)
		}
	}
}

func (e *Executor) sendEmail(ctx context.Context, ec ExecutionContext, logger *slog.Logger) {
	subject := configStringDefault(ec.Node.Config, "subject", "Workflow notification")
	body := configString(ec.Node.Config, "body")

	addresses := make([]string, 0)

	for _, recipient := range configStrings(ec.Node.Config, "recipients") {
		if recipient != "originator" {
			addresses = append(addresses, recipient)

			continue
		}

		originator, err := e.persistence.Directory().UserByID(ctx, ec.Package.OriginatorID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to resolve originator for email", "error", err)

			continue
		}

		addresses = append(addresses, originator.Email)
	}

	if len(addresses) == 0 {
		logger.WarnContext(ctx, "Email action node has no resolvable recipients")

		return
	}

	e.email.SendEmail(ctx, addresses, subject, body)
}

func configString(config map[string]any, key string) string {
	value, _ := config[key].(string)

	return value
}

func configStringDefault(config map[string]any, key, fallback string) string {
	if value := configString(config, key); value != "" {
		return value
	}

	return fallback
}

func configInt(config map[string]any, key string) int {
	switch value := config[key].(type) {
	case int:
		return value
	case float64:
		return int(value)
	default:
		return 0
	}
}

func configStrings(config map[string]any, key string) []string {
	raw, ok := config[key].([]any)
	if !ok {
		return nil
	}

	values := make([]string, 0, len(raw))

	for _, item := range raw {
		if s, ok := item.(string); ok {
			values = append(values, s)
		}
	}

	return values
}
