package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinflow/skein/pkg/schema"
)

func sampleDefinition() *schema.GraphDefinition {
	return &schema.GraphDefinition{
		Nodes: []schema.Node{
			{ID: "plan", Type: schema.NodeTypeAgent, Name: "Planner"},
			{ID: "fetch", Type: schema.NodeTypeToolCall, Name: "Fetch Data"},
			{ID: "report", Type: schema.NodeTypeAgent},
		},
		Edges: []schema.Edge{
			{ID: "e1", Source: "plan", Target: "fetch"},
			{ID: "e2", Source: "fetch", Target: "report", Condition: "output.rows > 0"},
		},
	}
}

func TestBuildAddsVirtualStartAndEnd(t *testing.T) {
	model := Build("sample", sampleDefinition(), nil, nil)

	require.Len(t, model.Nodes, 5)
	assert.Equal(t, "__start__", model.Nodes[0].ID)
	assert.Equal(t, "__end__", model.Nodes[len(model.Nodes)-1].ID)

	// Entry node hangs off start, terminal node feeds end.
	assert.Contains(t, model.Edges, Edge{From: "__start__", To: "plan"})
	assert.Contains(t, model.Edges, Edge{From: "report", To: "__end__"})
}

func TestBuildOverlaysTrail(t *testing.T) {
	trail := []schema.TrailStep{
		{NodeID: "plan"},
		{NodeID: "fetch", Error: "tool fetch failed: boom"},
		{NodeID: "plan"},
	}
	model := Build("", sampleDefinition(), trail, &schema.ResumeCursor{NextNodeID: "report"})

	byID := make(map[string]*Node)
	for _, n := range model.Nodes {
		byID[n.ID] = n
	}

	require.NotNil(t, byID["plan"].Status)
	assert.Equal(t, "visited", byID["plan"].Status.Status)
	assert.Equal(t, 2, byID["plan"].Status.Visits)

	assert.Equal(t, "failed", byID["fetch"].Status.Status)
	assert.Equal(t, "waiting", byID["report"].Status.Status)
}

func TestRenderMermaidShapes(t *testing.T) {
	out := RenderMermaid(Build("sample", sampleDefinition(), nil, nil))

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `plan["Planner"]`)
	assert.Contains(t, out, `fetch[["Fetch Data"]]`)
	assert.Contains(t, out, `report["report"]`)
	assert.Contains(t, out, `__start__(["Start"])`)
	assert.Contains(t, out, "fetch -->|output.rows > 0| report")
}

func TestRenderMermaidStatusClasses(t *testing.T) {
	trail := []schema.TrailStep{{NodeID: "plan"}}
	out := RenderMermaid(Build("", sampleDefinition(), trail, nil))

	assert.Contains(t, out, "classDef visited")
	assert.Contains(t, out, "class plan visited")
	assert.NotContains(t, out, "class fetch")
}

func TestRenderMermaidEscapesLabels(t *testing.T) {
	def := &schema.GraphDefinition{
		Nodes: []schema.Node{{ID: "a b", Name: `say "hi"`}},
	}
	out := RenderMermaid(Build("", def, nil, nil))

	assert.Contains(t, out, "a_b")
	assert.Contains(t, out, "#quot;hi#quot;")
}
