package diagram

import (
	"github.com/skeinflow/skein/pkg/schema"
)

// Build constructs a Model from a graph definition and, optionally, the
// trail of a run executing it. Trail steps become status overlays so a
// rendered diagram shows where the run has been and where it stopped.
func Build(title string, def *schema.GraphDefinition, trail []schema.TrailStep, cursor *schema.ResumeCursor) *Model {
	nodes := make([]*Node, 0, len(def.Nodes)+2)

	start := &Node{ID: "__start__", Label: "Start", Kind: NodeKindStart}
	nodes = append(nodes, start)

	overlays := overlayFromTrail(trail, cursor)
	for _, n := range def.Nodes {
		node := &Node{
			ID:     n.ID,
			Label:  nodeLabel(n),
			Kind:   nodeKind(n.Type),
			Status: overlays[n.ID],
		}
		nodes = append(nodes, node)
	}

	end := &Node{ID: "__end__", Label: "End", Kind: NodeKindEnd}
	nodes = append(nodes, end)

	return &Model{
		Title: title,
		Nodes: nodes,
		Edges: buildEdges(def),
	}
}

func nodeLabel(n schema.Node) string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

func nodeKind(t schema.NodeType) NodeKind {
	if t == schema.NodeTypeToolCall {
		return NodeKindToolCall
	}
	return NodeKindAgent
}

// overlayFromTrail folds the trail into per-node overlays. A node visited
// several times (cycles) keeps a visit count; the last error wins.
func overlayFromTrail(trail []schema.TrailStep, cursor *schema.ResumeCursor) map[string]*StatusOverlay {
	if len(trail) == 0 && cursor == nil {
		return nil
	}
	overlays := make(map[string]*StatusOverlay)
	for _, step := range trail {
		o := overlays[step.NodeID]
		if o == nil {
			o = &StatusOverlay{Status: "visited"}
			overlays[step.NodeID] = o
		}
		o.Visits++
		if step.Error != "" {
			o.Status = "failed"
			o.Error = step.Error
		}
	}
	if cursor != nil {
		o := overlays[cursor.NextNodeID]
		if o == nil {
			o = &StatusOverlay{}
			overlays[cursor.NextNodeID] = o
		}
		o.Status = "waiting"
	}
	return overlays
}

// buildEdges maps definition edges plus virtual start and end hookups.
func buildEdges(def *schema.GraphDefinition) []Edge {
	edges := make([]Edge, 0, len(def.Edges)+2)

	for _, id := range def.EntryNodes() {
		edges = append(edges, Edge{From: "__start__", To: id})
	}
	for _, e := range def.Edges {
		edges = append(edges, Edge{From: e.Source, To: e.Target, Label: e.Condition})
	}
	for _, n := range def.Nodes {
		if len(def.Successors(n.ID)) == 0 {
			edges = append(edges, Edge{From: n.ID, To: "__end__"})
		}
	}
	return edges
}
