package routing

import (
	"sort"

	"github.com/routepack/routepack/pkg/models"
)

// NodeID identifies a node within one template's graph.
type NodeID string

type edge struct {
	from     NodeID
	connType models.ConnectionType
}

// Graph is the in-memory adjacency view of one workflow template, built once
// per routing call. The relational rows stay the authoritative copy; the
// graph exists so chaining never goes back to storage.
type Graph struct {
	stages   map[NodeID]*models.StageNode
	actions  map[NodeID]*models.ActionNode
	next     map[edge]NodeID
	incoming map[NodeID]bool
}

// NewGraph builds the adjacency structure for a template.
func NewGraph(template *models.WorkflowTemplate) *Graph {
	g := &Graph{
		stages:   make(map[NodeID]*models.StageNode, len(template.StageNodes)),
		actions:  make(map[NodeID]*models.ActionNode, len(template.ActionNodes)),
		next:     make(map[edge]NodeID, len(template.Connections)),
		incoming: make(map[NodeID]bool),
	}

	for _, stage := range template.StageNodes {
		g.stages[NodeID(stage.NodeID)] = stage
	}

	for _, action := range template.ActionNodes {
		g.actions[NodeID(action.NodeID)] = action
	}

	for _, conn := range template.Connections {
		connType := conn.ConnectionType
		if connType == "" {
			connType = models.ConnectionTypeDefault
		}

		g.next[edge{from: NodeID(conn.FromNode), connType: connType}] = NodeID(conn.ToNode)
		g.incoming[NodeID(conn.ToNode)] = true
	}

	return g
}

// StartNode returns the workflow entry point: a node with no incoming
// connections, preferring stage nodes over action nodes. Ties break on the
// lowest node id so the pick is deterministic.
func (g *Graph) StartNode() (NodeID, bool) {
	var stageCandidates, actionCandidates []NodeID

	for id := range g.stages {
		if !g.incoming[id] {
			stageCandidates = append(stageCandidates, id)
		}
	}

	for id := range g.actions {
		if !g.incoming[id] {
			actionCandidates = append(actionCandidates, id)
		}
	}

	candidates := stageCandidates
	if len(candidates) == 0 {
		candidates = actionCandidates
	}

	if len(candidates) == 0 {
		return "", false
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	return candidates[0], true
}

// Stage looks up a stage node by id.
func (g *Graph) Stage(id NodeID) (*models.StageNode, bool) {
	stage, ok := g.stages[id]

	return stage, ok
}

// Action looks up an action node by id.
func (g *Graph) Action(id NodeID) (*models.ActionNode, bool) {
	action, ok := g.actions[id]

	return action, ok
}

// StageByID looks up a stage node by its raw string id.
func (g *Graph) StageByID(nodeID string) (*models.StageNode, bool) {
	return g.Stage(NodeID(nodeID))
}

// Contains reports whether the id resolves to any node of the template.
func (g *Graph) Contains(id NodeID) bool {
	if _, ok := g.stages[id]; ok {
		return true
	}

	_, ok := g.actions[id]

	return ok
}

// NextNode returns the single successor for (from, connType), or false when
// the edge is absent. A node with no outgoing default edge is terminal.
func (g *Graph) NextNode(from NodeID, connType models.ConnectionType) (NodeID, bool) {
	if connType == "" {
		connType = models.ConnectionTypeDefault
	}

	to, ok := g.next[edge{from: from, connType: connType}]

	return to, ok
}
