package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/nugget/loanagent/internal/tools"
)

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.registry.Specs()}, s.logger)
}

// handleToolCall runs one tool directly. The body is either a JSON
// object of arguments or a bare user id.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	tool, err := s.registry.AsLangchainTool(name)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, tools.CategoryUnknownTool, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	result, err := tool.Call(r.Context(), string(body))
	if err != nil {
		var invalid *tools.ErrInvalidArguments
		if errors.As(err, &invalid) {
			s.errorResponse(w, http.StatusBadRequest, tools.CategoryInvalidArguments, invalid.Error())
			return
		}
		s.logger.Error("tool call failed", "tool", name, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, tools.Category(err), "tool execution failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"tool":   name,
		"result": result,
	}, s.logger)
}
