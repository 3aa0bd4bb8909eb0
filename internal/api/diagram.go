package api

import (
	"net/http"

	"github.com/skeinflow/skein/internal/diagram"
)

// handleGraphDiagram renders a stored graph as a Mermaid flowchart.
func (s *Server) handleGraphDiagram(w http.ResponseWriter, r *http.Request) {
	graph, err := s.deps.Store.GetGraph(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	model := diagram.Build(graph.Name, &graph.Definition, nil, nil)
	writeMermaid(w, diagram.RenderMermaid(model))
}

// handleRunDiagram renders a run's snapshot with trail status overlaid, so
// the diagram shows visited, failed and waiting nodes.
func (s *Server) handleRunDiagram(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Lifecycle.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	model := diagram.Build(run.ID, &run.Definition, run.Trail, run.Cursor)
	writeMermaid(w, diagram.RenderMermaid(model))
}

func writeMermaid(w http.ResponseWriter, rendered string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rendered))
}
