package diagram

// NodeKind classifies a diagram node by its graph node type.
type NodeKind string

const (
	NodeKindAgent    NodeKind = "agent"
	NodeKindToolCall NodeKind = "tool_call"
	NodeKindStart    NodeKind = "start"
	NodeKindEnd      NodeKind = "end"
)

// Model is the intermediate representation handed to renderers.
type Model struct {
	Title string
	Nodes []*Node
	Edges []Edge
}

// Node represents a single graph vertex in the diagram.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries runtime state from a run's trail onto a node.
type StatusOverlay struct {
	Status string // visited, failed, waiting
	Visits int
	Error  string
}

// Edge represents a handoff between two nodes.
type Edge struct {
	From  string
	To    string
	Label string // the routing condition, if any
}
