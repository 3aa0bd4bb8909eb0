package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistryRegisterAndLookup(t *testing.T) {
	r := NewSessionRegistry()

	_, ok := r.SessionFor("run-1")
	assert.False(t, ok)

	r.Register("run-1", "sess-a")
	sid, ok := r.SessionFor("run-1")
	assert.True(t, ok)
	assert.Equal(t, "sess-a", sid)

	// Reconnect overwrites.
	r.Register("run-1", "sess-b")
	sid, _ = r.SessionFor("run-1")
	assert.Equal(t, "sess-b", sid)
}

func TestSessionRegistryForget(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("run-1", "sess-a")
	r.Forget("run-1")

	_, ok := r.SessionFor("run-1")
	assert.False(t, ok)
}

func TestSessionRegistryRemoveSession(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("run-1", "sess-a")
	r.Register("run-2", "sess-a")
	r.Register("run-3", "sess-b")

	r.Remove("sess-a")

	_, ok := r.SessionFor("run-1")
	assert.False(t, ok)
	_, ok = r.SessionFor("run-2")
	assert.False(t, ok)
	sid, ok := r.SessionFor("run-3")
	assert.True(t, ok)
	assert.Equal(t, "sess-b", sid)
}
