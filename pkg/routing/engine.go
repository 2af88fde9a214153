package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/routepack/routepack/pkg/actions"
	"github.com/routepack/routepack/pkg/eventbus"
	"github.com/routepack/routepack/pkg/events"
	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/notifications"
	"github.com/routepack/routepack/pkg/persistence"
)

// ActionRequest carries one human decision on a package. Actor identity and
// client IP come from the caller explicitly; the engine never infers them.
type ActionRequest struct {
	UserID       string
	OfficeID     string
	Decision     models.DecisionType
	Comment      string
	ReturnToNode string
	Position     string
	IPAddress    string
}

// ReturnOption is one node a return decision may target.
type ReturnOption struct {
	NodeID string `json:"node_id"`
	Name   string `json:"name"`
}

// Engine drives packages through their workflow graphs. Every transition runs
// inside one persistence transaction; concurrent transitions on the same
// package serialize through GetForUpdate.
type Engine struct {
	persistence persistence.Persistence
	executor    *actions.Executor
	notifier    notifications.Notifier
	bus         eventbus.EventBus
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewEngine(
	p persistence.Persistence,
	executor *actions.Executor,
	notifier notifications.Notifier,
	bus eventbus.EventBus,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		persistence: p,
		executor:    executor,
		notifier:    notifier,
		bus:         bus,
		tracer:      otel.Tracer("routepack.routing"),
		logger:      logger.With("module", "routing"),
	}
}

// Submit moves a draft package into routing at the template's start node.
func (e *Engine) Submit(ctx context.Context, packageID, userID string) (*models.Package, error) {
	ctx, span := e.tracer.Start(ctx, "routing.submit",
		trace.WithAttributes(attribute.String("package.id", packageID)))
	defer span.End()

	var pkg *models.Package

	err := e.persistence.Transact(ctx, func(ctx context.Context) error {
		var err error

		pkg, err = e.persistence.Packages().GetForUpdate(ctx, packageID)
		if err != nil {
			return err
		}

		if pkg.Status != models.PackageStatusDraft {
			return NewRoutingError("package must be in draft status to submit")
		}

		if pkg.TemplateID == "" {
			return NewRoutingError("package must have a workflow template")
		}

		if pkg.OriginatorID != userID {
			return NewRoutingError("only the originator can submit this package")
		}

		graph, err := e.loadGraph(ctx, pkg)
		if err != nil {
			return err
		}

		start, ok := graph.StartNode()
		if !ok {
			return NewRoutingError("workflow has no start node")
		}

		if err := e.assignReferenceNumber(ctx, pkg); err != nil {
			return err
		}

		now := time.Now().UTC()
		pkg.Status = models.PackageStatusInRouting
		pkg.SubmittedAt = &now

		if err := e.appendHistory(ctx, pkg.ID, "", string(start), models.TransitionSubmit, ""); err != nil {
			return err
		}

		if err := e.resolveNode(ctx, graph, pkg, start, "", "", make(map[NodeID]bool)); err != nil {
			return err
		}

		return e.persistence.Packages().Save(ctx, pkg)
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Package submitted",
		"package_id", pkg.ID, "reference_number", pkg.ReferenceNumber, "current_node", pkg.CurrentNode)
	e.publish(ctx, pkg.ID, events.PackageSubmitted{
		BaseEvent:       e.baseEvent(events.PackageSubmittedEvent, pkg.ID),
		ReferenceNumber: pkg.ReferenceNumber,
		OrganizationID:  pkg.OrganizationID,
		StartNode:       pkg.CurrentNode,
	})

	return pkg, nil
}

// TakeAction applies one human decision at the package's current stage and
// returns the immutable record of it.
func (e *Engine) TakeAction(ctx context.Context, packageID string, req ActionRequest) (*models.StageAction, error) {
	ctx, span := e.tracer.Start(ctx, "routing.take_action",
		trace.WithAttributes(
			attribute.String("package.id", packageID),
			attribute.String("decision", string(req.Decision)),
		))
	defer span.End()

	var (
		pkg    *models.Package
		action *models.StageAction
	)

	err := e.persistence.Transact(ctx, func(ctx context.Context) error {
		var err error

		pkg, err = e.persistence.Packages().GetForUpdate(ctx, packageID)
		if err != nil {
			return err
		}

		if pkg.Status != models.PackageStatusInRouting {
			return NewRoutingError("package is not in routing")
		}

		graph, err := e.loadGraph(ctx, pkg)
		if err != nil {
			return err
		}

		stage, ok := graph.StageByID(pkg.CurrentNode)
		if !ok {
			return NewRoutingError("user cannot act at this stage")
		}

		allowed, err := e.canActAtStage(ctx, pkg, stage, req.UserID, req.OfficeID)
		if err != nil {
			return err
		}

		if !allowed {
			return NewRoutingError("user cannot act at this stage")
		}

		if !req.Decision.Valid() {
			return NewRoutingError("invalid decision type: %s", req.Decision)
		}

		if (req.Decision == models.DecisionReturn || req.Decision == models.DecisionReject) && req.Comment == "" {
			return NewRoutingError("%s action requires a comment", req.Decision)
		}

		if req.Decision == models.DecisionComplete && pkg.IntegrityViolation {
			return NewRoutingError("package has an unresolved integrity violation")
		}

		action = &models.StageAction{
			PackageID:     pkg.ID,
			NodeID:        pkg.CurrentNode,
			ActorID:       req.UserID,
			ActorOfficeID: req.OfficeID,
			ActorPosition: req.Position,
			Decision:      req.Decision,
			Comment:       req.Comment,
			ReturnToNode:  req.ReturnToNode,
			IPAddress:     req.IPAddress,
		}

		if err := e.persistence.Routing().CreateStageAction(ctx, action); err != nil {
			return err
		}

		switch req.Decision {
		case models.DecisionComplete:
			err = e.handleComplete(ctx, graph, pkg, stage, action)
		case models.DecisionReturn:
			err = e.handleReturn(ctx, graph, pkg, action)
		case models.DecisionReject:
			err = e.handleReject(ctx, graph, pkg, action)
		}

		if err != nil {
			return err
		}

		return e.persistence.Packages().Save(ctx, pkg)
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Stage action recorded",
		"package_id", pkg.ID, "node_id", action.NodeID, "decision", action.Decision,
		"status", pkg.Status, "current_node", pkg.CurrentNode)
	e.publish(ctx, pkg.ID, events.PackageTransition{
		BaseEvent:       e.baseEvent(events.PackageTransitionEvent, pkg.ID),
		ReferenceNumber: pkg.ReferenceNumber,
		OrganizationID:  pkg.OrganizationID,
		FromNode:        action.NodeID,
		ToNode:          pkg.CurrentNode,
		Transition:      transitionFor(action.Decision),
		Status:          pkg.Status,
		ActorID:         action.ActorID,
	})

	return action, nil
}

// CanAct reports whether the user, acting for the office, may decide at the
// package's current stage. Every action entry point goes through the same
// check.
func (e *Engine) CanAct(ctx context.Context, packageID, userID, officeID string) (bool, error) {
	pkg, err := e.persistence.Packages().GetByID(ctx, packageID)
	if err != nil {
		return false, err
	}

	if pkg.Status != models.PackageStatusInRouting {
		return false, nil
	}

	graph, err := e.loadGraph(ctx, pkg)
	if err != nil {
		return false, err
	}

	stage, ok := graph.StageByID(pkg.CurrentNode)
	if !ok {
		return false, nil
	}

	return e.canActAtStage(ctx, pkg, stage, userID, officeID)
}

// PendingOffices returns the assigned offices that have not yet completed the
// current stage. It is empty for "any"-rule stages and outside routing.
func (e *Engine) PendingOffices(ctx context.Context, packageID string) ([]string, error) {
	pkg, err := e.persistence.Packages().GetByID(ctx, packageID)
	if err != nil {
		return nil, err
	}

	if pkg.Status != models.PackageStatusInRouting {
		return []string{}, nil
	}

	graph, err := e.loadGraph(ctx, pkg)
	if err != nil {
		return nil, err
	}

	stage, ok := graph.StageByID(pkg.CurrentNode)
	if !ok || stage.MultiOfficeRule != models.MultiOfficeRuleAll {
		return []string{}, nil
	}

	completions, err := e.persistence.Routing().CompletionsByNode(ctx, pkg.ID, stage.NodeID)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]bool, len(completions))
	for _, completion := range completions {
		completed[completion.OfficeID] = true
	}

	pending := make([]string, 0, len(stage.AssignedOffices))

	for _, officeID := range stage.AssignedOffices {
		if !completed[officeID] {
			pending = append(pending, officeID)
		}
	}

	return pending, nil
}

// AvailableReturnNodes lists the stage nodes the package already visited, in
// first-visit order, excluding the current one. These are the valid targets
// for a return decision.
func (e *Engine) AvailableReturnNodes(ctx context.Context, packageID string) ([]ReturnOption, error) {
	pkg, err := e.persistence.Packages().GetByID(ctx, packageID)
	if err != nil {
		return nil, err
	}

	graph, err := e.loadGraph(ctx, pkg)
	if err != nil {
		return nil, err
	}

	history, err := e.persistence.Routing().History(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	options := make([]ReturnOption, 0)

	for _, entry := range history {
		for _, nodeID := range []string{entry.FromNode, entry.ToNode} {
			if nodeID == "" || nodeID == pkg.CurrentNode || seen[nodeID] {
				continue
			}

			seen[nodeID] = true

			if stage, ok := graph.StageByID(nodeID); ok {
				options = append(options, ReturnOption{NodeID: stage.NodeID, Name: stage.Name})
			}
		}
	}

	return options, nil
}

// Hold pauses an in-routing package. The current node is preserved so Resume
// picks up where routing stopped.
func (e *Engine) Hold(ctx context.Context, packageID, userID string) error {
	return e.persistence.Transact(ctx, func(ctx context.Context) error {
		pkg, err := e.persistence.Packages().GetForUpdate(ctx, packageID)
		if err != nil {
			return err
		}

		if pkg.Status != models.PackageStatusInRouting {
			return NewRoutingError("package is not in routing")
		}

		if pkg.OriginatorID != userID {
			return NewRoutingError("only the originator can hold this package")
		}

		pkg.Status = models.PackageStatusOnHold

		return e.persistence.Packages().Save(ctx, pkg)
	})
}

// Resume returns a held package to routing at its preserved node.
func (e *Engine) Resume(ctx context.Context, packageID, userID string) error {
	return e.persistence.Transact(ctx, func(ctx context.Context) error {
		pkg, err := e.persistence.Packages().GetForUpdate(ctx, packageID)
		if err != nil {
			return err
		}

		if pkg.Status != models.PackageStatusOnHold {
			return NewRoutingError("package is not on hold")
		}

		if pkg.OriginatorID != userID {
			return NewRoutingError("only the originator can resume this package")
		}

		pkg.Status = models.PackageStatusInRouting

		return e.persistence.Packages().Save(ctx, pkg)
	})
}

func (e *Engine) loadGraph(ctx context.Context, pkg *models.Package) (*Graph, error) {
	template, err := e.persistence.Templates().GetByID(ctx, pkg.TemplateID)
	if err != nil {
		return nil, err
	}

	return NewGraph(template), nil
}

func (e *Engine) canActAtStage(
	ctx context.Context,
	pkg *models.Package,
	stage *models.StageNode,
	userID, officeID string,
) (bool, error) {
	if !stage.IsAssigned(officeID) {
		return false, nil
	}

	if stage.MultiOfficeRule == models.MultiOfficeRuleAll {
		completions, err := e.persistence.Routing().CompletionsByNode(ctx, pkg.ID, stage.NodeID)
		if err != nil {
			return false, err
		}

		for _, completion := range completions {
			if completion.OfficeID == officeID {
				return false, nil
			}
		}
	}

	return e.persistence.Directory().IsMember(ctx, userID, officeID)
}

func (e *Engine) handleComplete(
	ctx context.Context,
	graph *Graph,
	pkg *models.Package,
	stage *models.StageNode,
	action *models.StageAction,
) error {
	completion := &models.StageCompletion{
		PackageID:     pkg.ID,
		NodeID:        stage.NodeID,
		OfficeID:      action.ActorOfficeID,
		StageActionID: action.ID,
	}

	if err := e.persistence.Routing().CreateCompletion(ctx, completion); err != nil {
		return err
	}

	if stage.MultiOfficeRule == models.MultiOfficeRuleAll && len(stage.AssignedOffices) > 0 {
		completions, err := e.persistence.Routing().CompletionsByNode(ctx, pkg.ID, stage.NodeID)
		if err != nil {
			return err
		}

		offices := make(map[string]bool, len(completions))
		for _, c := range completions {
			offices[c.OfficeID] = true
		}

		if len(offices) < len(stage.AssignedOffices) {
			e.logger.InfoContext(ctx, "Stage awaiting remaining offices",
				"package_id", pkg.ID, "node_id", stage.NodeID,
				"completed", len(offices), "required", len(stage.AssignedOffices))

			return nil
		}
	}

	return e.advanceToNext(ctx, graph, pkg, NodeID(stage.NodeID), action.ID)
}

func (e *Engine) handleReturn(
	ctx context.Context,
	graph *Graph,
	pkg *models.Package,
	action *models.StageAction,
) error {
	if action.ReturnToNode == "" {
		return NewRoutingError("return action requires a destination node")
	}

	destination := NodeID(action.ReturnToNode)

	if !graph.Contains(destination) {
		return NewRoutingError("return destination node does not exist: %s", destination)
	}

	// Re-entry demands fresh consensus on both ends of the return.
	for _, nodeID := range []string{action.NodeID, string(destination)} {
		if err := e.persistence.Routing().DeleteCompletions(ctx, pkg.ID, nodeID); err != nil {
			return err
		}
	}

	if err := e.appendHistory(ctx, pkg.ID, action.NodeID, string(destination), models.TransitionReturn, action.ID); err != nil {
		return err
	}

	return e.resolveNode(ctx, graph, pkg, destination, action.NodeID, action.ActorID, make(map[NodeID]bool))
}

func (e *Engine) handleReject(
	ctx context.Context,
	graph *Graph,
	pkg *models.Package,
	action *models.StageAction,
) error {
	from := NodeID(action.NodeID)

	if next, ok := graph.NextNode(from, models.ConnectionTypeReject); ok {
		if err := e.appendHistory(ctx, pkg.ID, action.NodeID, string(next), models.TransitionReject, action.ID); err != nil {
			return err
		}

		return e.resolveNode(ctx, graph, pkg, next, action.NodeID, action.ActorID, make(map[NodeID]bool))
	}

	if err := e.finalize(ctx, pkg, models.PackageStatusCancelled, action.NodeID, models.TransitionReject, action.ID); err != nil {
		return err
	}

	e.notifier.NotifyUser(ctx, pkg.OriginatorID, notifications.Notification{
		PackageID: pkg.ID,
		Kind:      "package_rejected",
		Title:     "Package Rejected",
		Message:   fmt.Sprintf("Package %s was rejected", pkg.ReferenceNumber),
		Comment:   action.Comment,
	})

	return nil
}

// advanceToNext follows the default edge from a completed stage. A stage with
// no default successor is the end of the workflow.
func (e *Engine) advanceToNext(
	ctx context.Context,
	graph *Graph,
	pkg *models.Package,
	from NodeID,
	triggeredByID string,
) error {
	next, ok := graph.NextNode(from, models.ConnectionTypeDefault)
	if !ok {
		if err := e.finalize(ctx, pkg, models.PackageStatusCompleted, string(from), models.TransitionComplete, triggeredByID); err != nil {
			return err
		}

		e.notifyOriginatorCompleted(ctx, pkg)

		return nil
	}

	if err := e.appendHistory(ctx, pkg.ID, string(from), string(next), models.TransitionAdvance, triggeredByID); err != nil {
		return err
	}

	return e.resolveNode(ctx, graph, pkg, next, string(from), triggeredByID, make(map[NodeID]bool))
}

// resolveNode lands the package on a node: stage nodes stop the chain and
// notify their offices, action nodes execute and keep chaining. The visited
// set makes a cycle that never reaches a stage a hard error instead of an
// infinite loop.
func (e *Engine) resolveNode(
	ctx context.Context,
	graph *Graph,
	pkg *models.Package,
	nodeID NodeID,
	fromNode string,
	triggeredByID string,
	visited map[NodeID]bool,
) error {
	if stage, ok := graph.Stage(nodeID); ok {
		pkg.CurrentNode = string(nodeID)
		e.notifyStageOffices(ctx, pkg, stage)

		return nil
	}

	if action, ok := graph.Action(nodeID); ok {
		if visited[nodeID] {
			return NewRoutingError("action node cycle detected at %s", nodeID)
		}

		visited[nodeID] = true
		pkg.CurrentNode = string(nodeID)

		outcome := e.executor.Execute(ctx, actions.ExecutionContext{
			Package:       pkg,
			Node:          action,
			FromNode:      fromNode,
			Stages:        graph,
			TriggeredByID: triggeredByID,
		})

		if outcome.Terminal {
			transition := models.TransitionComplete
			if outcome.Status == models.PackageStatusCancelled {
				transition = models.TransitionReject
			}

			if err := e.finalize(ctx, pkg, outcome.Status, string(nodeID), transition, triggeredByID); err != nil {
				return err
			}

			e.notifyOriginatorTerminal(ctx, pkg, outcome)

			return nil
		}

		next, hasNext := graph.NextNode(nodeID, models.ConnectionTypeDefault)
		if !hasNext {
			// No outgoing edge; the package stays parked here until the
			// template is fixed or a human intervenes.
			e.logger.WarnContext(ctx, "Action node has no outgoing connection",
				"package_id", pkg.ID, "node_id", string(nodeID))

			return nil
		}

		if err := e.appendHistory(ctx, pkg.ID, string(nodeID), string(next), models.TransitionAdvance, triggeredByID); err != nil {
			return err
		}

		return e.resolveNode(ctx, graph, pkg, next, string(nodeID), triggeredByID, visited)
	}

	// Stored graphs can reference nodes that were since removed. Landing on
	// one strands the package rather than failing the transition.
	e.logger.WarnContext(ctx, "Routing reached an unknown node",
		"package_id", pkg.ID, "node_id", string(nodeID))
	pkg.CurrentNode = string(nodeID)

	return nil
}

func (e *Engine) finalize(
	ctx context.Context,
	pkg *models.Package,
	status models.PackageStatus,
	fromNode string,
	transition models.TransitionType,
	triggeredByID string,
) error {
	now := time.Now().UTC()
	pkg.Status = status
	pkg.CurrentNode = ""

	if status == models.PackageStatusCompleted {
		pkg.CompletedAt = &now
	}

	return e.appendHistory(ctx, pkg.ID, fromNode, "", transition, triggeredByID)
}

func (e *Engine) appendHistory(
	ctx context.Context,
	packageID, fromNode, toNode string,
	transition models.TransitionType,
	triggeredByID string,
) error {
	return e.persistence.Routing().AppendHistory(ctx, &models.RoutingHistory{
		PackageID:     packageID,
		FromNode:      fromNode,
		ToNode:        toNode,
		Transition:    transition,
		TriggeredByID: triggeredByID,
	})
}

func (e *Engine) notifyStageOffices(ctx context.Context, pkg *models.Package, stage *models.StageNode) {
	notification := notifications.Notification{
		PackageID: pkg.ID,
		Kind:      "action_required",
		Title:     "Package Requires Action",
		Message:   fmt.Sprintf("Package %s is awaiting %s at %s", pkg.ReferenceNumber, stage.StageType, stage.Name),
	}

	for _, officeID := range stage.AssignedOffices {
		e.notifier.NotifyOffice(ctx, officeID, notification)
	}
}

func (e *Engine) notifyOriginatorCompleted(ctx context.Context, pkg *models.Package) {
	e.notifier.NotifyUser(ctx, pkg.OriginatorID, notifications.Notification{
		PackageID: pkg.ID,
		Kind:      "package_completed",
		Title:     "Package Completed",
		Message:   fmt.Sprintf("Package %s completed its workflow", pkg.ReferenceNumber),
	})
}

func (e *Engine) notifyOriginatorTerminal(ctx context.Context, pkg *models.Package, outcome actions.Outcome) {
	if outcome.Status == models.PackageStatusCompleted {
		e.notifyOriginatorCompleted(ctx, pkg)

		return
	}

	e.notifier.NotifyUser(ctx, pkg.OriginatorID, notifications.Notification{
		PackageID: pkg.ID,
		Kind:      "package_rejected",
		Title:     "Package Rejected",
		Message:   fmt.Sprintf("Package %s was rejected by the workflow", pkg.ReferenceNumber),
		Comment:   outcome.Reason,
	})
}

func (e *Engine) assignReferenceNumber(ctx context.Context, pkg *models.Package) error {
	if pkg.ReferenceNumber != "" {
		return nil
	}

	org, err := e.persistence.Directory().OrganizationByID(ctx, pkg.OrganizationID)
	if err != nil {
		return err
	}

	year := time.Now().UTC().Year()

	sequence, err := e.persistence.Packages().NextReferenceSequence(ctx, org.Code, year)
	if err != nil {
		return err
	}

	pkg.ReferenceNumber = models.FormatReferenceNumber(org.Code, year, sequence)

	return nil
}

func (e *Engine) baseEvent(eventType events.EventType, packageID string) events.BaseEvent {
	id := ""
	if e.bus != nil {
		id = e.bus.GenerateID()
	}

	return events.BaseEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		PackageID: packageID,
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish routing event",
			"event_type", event.GetType(), "error", err)
	}
}

func transitionFor(decision models.DecisionType) models.TransitionType {
	switch decision {
	case models.DecisionReturn:
		return models.TransitionReturn
	case models.DecisionReject:
		return models.TransitionReject
	default:
		return models.TransitionAdvance
	}
}
