package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RunID(ctx))

	ctx = WithRunID(ctx, "r1")
	ctx = WithNodeID(ctx, "n1")
	ctx = WithAgentID(ctx, "a1")

	assert.Equal(t, "r1", RunID(ctx))
	assert.Equal(t, "n1", NodeID(ctx))
	assert.Equal(t, "a1", AgentID(ctx))
}

func TestCorrelationHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithNodeID(WithRunID(context.Background(), "r1"), "n1")
	logger.InfoContext(ctx, "step done")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "r1", record["run_id"])
	assert.Equal(t, "n1", record["node_id"])
	assert.Nil(t, record["agent_id"])
}

func TestCorrelationHandlerPassesThroughWithoutIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.Info("plain")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "plain", record["msg"])
	assert.Nil(t, record["run_id"])
}
