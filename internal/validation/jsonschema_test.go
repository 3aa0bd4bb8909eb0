package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinflow/skein/pkg/schema"
)

func validDefinition() *schema.GraphDefinition {
	return &schema.GraphDefinition{
		Nodes: []schema.Node{
			{ID: "plan", Type: schema.NodeTypeAgent, AgentID: "a1"},
			{ID: "apply", Type: schema.NodeTypeToolCall, Params: map[string]any{"tool": "echo"}},
		},
		Edges: []schema.Edge{
			{ID: "e1", Source: "plan", Target: "apply", Condition: `output.ok == true`},
		},
		MaxRounds: 5,
	}
}

func TestValidateDefinitionAccepts(t *testing.T) {
	v, err := NewGraphValidator()
	require.NoError(t, err)

	assert.NoError(t, v.ValidateDefinition(validDefinition()))
}

func TestValidateDefinitionRejectsNil(t *testing.T) {
	v, err := NewGraphValidator()
	require.NoError(t, err)

	require.Error(t, v.ValidateDefinition(nil))
}

func TestValidateDefinitionRejectsEmptyNodes(t *testing.T) {
	v, err := NewGraphValidator()
	require.NoError(t, err)

	err = v.ValidateDefinition(&schema.GraphDefinition{})
	require.Error(t, err)
	var serr *schema.SkeinError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeValidation, serr.Code)
}

func TestValidateDefinitionRejectsBadNodeType(t *testing.T) {
	v, err := NewGraphValidator()
	require.NoError(t, err)

	def := validDefinition()
	def.Nodes[0].Type = "robot"
	require.Error(t, v.ValidateDefinition(def))
}

func TestCheckStructureDuplicateNodeID(t *testing.T) {
	def := &schema.GraphDefinition{
		Nodes: []schema.Node{{ID: "x"}, {ID: "x"}},
	}

	err := CheckStructure(def)
	require.Error(t, err)
	var serr *schema.SkeinError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeConfig, serr.Code)
	assert.Contains(t, serr.Message, "duplicate node id")
}

func TestCheckStructureDanglingEdge(t *testing.T) {
	def := &schema.GraphDefinition{
		Nodes: []schema.Node{{ID: "a"}},
		Edges: []schema.Edge{{ID: "e1", Source: "a", Target: "ghost"}},
	}

	err := CheckStructure(def)
	require.Error(t, err)
	var serr *schema.SkeinError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeConfig, serr.Code)
	assert.Contains(t, serr.Message, "ghost")

	def.Edges[0] = schema.Edge{ID: "e1", Source: "ghost", Target: "a"}
	require.Error(t, CheckStructure(def))
}

func TestValidateDefinitionAppliesStructureChecks(t *testing.T) {
	v, err := NewGraphValidator()
	require.NoError(t, err)

	def := validDefinition()
	def.Edges[0].Target = "nowhere"
	err = v.ValidateDefinition(def)
	require.Error(t, err)
	var serr *schema.SkeinError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeConfig, serr.Code)
}
