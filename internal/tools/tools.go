// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Kind is the side-effect class of a tool.
type Kind string

const (
	// KindQuery tools read records and return them.
	KindQuery Kind = "query"
	// KindAnalysis tools compute over records without changing them.
	KindAnalysis Kind = "analysis"
)

// Handler executes a tool with validated arguments.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool represents a callable tool.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Kind        Kind
	Handler     Handler
}

// Spec is the part of a tool the model sees.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Kind        Kind           `json:"kind"`
}

// Call is a request to run one tool.
type Call struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Result is the outcome of dispatching a Call. Failed dispatches still
// produce a Result; Content then holds a JSON error payload.
type Result struct {
	CallID   string
	ToolName string
	Content  string
	IsError  bool
	// Category is set for errors and for data-not-found results.
	Category string
	Err      error
	Duration time.Duration
}

// Registry holds the tools available to the agent. It is fixed at
// construction and safe for concurrent use.
type Registry struct {
	tools map[string]*Tool
	specs []Spec
}

// NewRegistry builds a registry from tools. Names must be non-empty and
// unique, and every tool needs a handler.
func NewRegistry(tools ...*Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if t == nil || t.Name == "" {
			return nil, errors.New("tool with empty name")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", t.Name)
		}
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name)
		}
		r.tools[t.Name] = t
		r.specs = append(r.specs, Spec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
			Kind:        t.Kind,
		})
	}
	sort.Slice(r.specs, func(i, j int) bool { return r.specs[i].Name < r.specs[j].Name })
	return r, nil
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Specs returns the tool specs sorted by name. The slice is a copy.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Names returns the tool names sorted.
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.Name
	}
	return names
}

// Dispatch resolves, validates and runs a call. It never fails: unknown
// tools, bad arguments and handler errors come back as error results so
// the model can see them and recover. The handler runs to completion
// even if ctx is canceled mid-call.
func (r *Registry) Dispatch(ctx context.Context, call Call) Result {
	start := time.Now()
	res := Result{CallID: call.ID, ToolName: call.Name}

	t := r.tools[call.Name]
	if t == nil {
		return errorResult(res, &ErrUnknownTool{ToolName: call.Name}, start)
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if problems := validateArgs(t.Parameters, args); len(problems) > 0 {
		return errorResult(res, &ErrInvalidArguments{ToolName: t.Name, Problems: problems}, start)
	}

	content, err := t.Handler(context.WithoutCancel(ctx), args)
	res.Duration = time.Since(start)

	var notFound *ErrDataNotFound
	switch {
	case errors.As(err, &notFound):
		res.Content = notFound.Error()
		res.Category = CategoryDataNotFound
		return res
	case err != nil:
		return errorResult(res, fmt.Errorf("%s: %w", t.Name, err), start)
	}

	res.Content = content
	return res
}

func errorResult(res Result, err error, start time.Time) Result {
	res.IsError = true
	res.Err = err
	res.Category = Category(err)
	res.Content = ErrorPayload(err)
	res.Duration = time.Since(start)
	return res
}

// ErrorPayload renders err as the JSON object shown to the model:
// {"error": "...", "category": "..."}.
func ErrorPayload(err error) string {
	b, _ := json.Marshal(struct {
		Error    string `json:"error"`
		Category string `json:"category"`
	}{err.Error(), Category(err)})
	return string(b)
}
