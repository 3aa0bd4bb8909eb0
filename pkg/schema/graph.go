package schema

// GraphDefinition is the JSON-serializable agent workflow graph.
// Planners provide this when creating or updating a workflow; the engine
// snapshots it into the run record at start time.
type GraphDefinition struct {
	Nodes     []Node         `json:"nodes"`
	Edges     []Edge         `json:"edges,omitempty"`
	MaxRounds int            `json:"max_rounds,omitempty"` // 0 = DefaultMaxRounds
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Node is a single vertex in the workflow graph.
type Node struct {
	ID       string         `json:"id"`
	Type     NodeType       `json:"type,omitempty"` // agent, tool_call (default: agent)
	Name     string         `json:"name,omitempty"`
	AgentID  string         `json:"agent_id,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Position *Position      `json:"position,omitempty"` // layout only, ignored by execution
}

// NodeType enumerates the kinds of nodes in a graph.
type NodeType string

const (
	NodeTypeAgent    NodeType = "agent"
	NodeTypeToolCall NodeType = "tool_call"
)

// Edge defines handoff: the source node's output becomes the target's input.
type Edge struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Condition string `json:"condition,omitempty"` // CEL expression over the source output
}

// Position is node layout metadata carried through for UI round-trips.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DefaultMaxRounds bounds graph traversal when the definition does not
// specify max_rounds. A cycle A->B->A therefore cannot spin forever.
const DefaultMaxRounds = 10

// EntryNodes returns the IDs of nodes that no edge targets, in definition
// order. These receive the run's initiating input.
func (g *GraphDefinition) EntryNodes() []string {
	targeted := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		targeted[e.Target] = true
	}
	var entries []string
	for _, n := range g.Nodes {
		if !targeted[n.ID] {
			entries = append(entries, n.ID)
		}
	}
	return entries
}

// NodeByID returns the node with the given id, or nil.
func (g *GraphDefinition) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Successors returns the edges leaving the given node, in definition order.
func (g *GraphDefinition) Successors(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}
