package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/nugget/loanagent/internal/agent"
	"github.com/nugget/loanagent/internal/render"
	"github.com/nugget/loanagent/internal/tracing"
)

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	agent.Request
	// Format "html" adds a rendered copy of the answer.
	Format string `json:"format,omitempty"`
}

// AskResponse is returned by both question endpoints.
type AskResponse struct {
	Response  string   `json:"response"`
	HTML      string   `json:"html,omitempty"`
	RequestID string   `json:"request_id"`
	Model     string   `json:"model,omitempty"`
	Turns     int      `json:"turns"`
	Tools     []string `json:"tools"`
}

// runFailure is the user-visible side of each fatal category. Raw
// error text stays in the logs.
var runFailure = map[agent.Category]struct {
	status  int
	message string
}{
	agent.CategoryAdapterError:           {http.StatusBadGateway, "The assistant is temporarily unavailable. Please try again later."},
	agent.CategoryRequestTimeout:         {http.StatusGatewayTimeout, "The request took too long to complete. Please try again."},
	agent.CategoryOrchestrationExhausted: {http.StatusInternalServerError, "The assistant could not complete this request."},
	agent.CategoryCanceled:               {http.StatusServiceUnavailable, "The request was canceled."},
}

// handleAskForm serves POST /ask with form fields query, user_id and
// the optional new_interest_rate, new_credit_score and new_income.
func (s *Server) handleAskForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req, err := parseAskForm(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.ask(w, r, req, false)
}

// handleAskJSON serves POST /v1/ask.
func (s *Server) handleAskJSON(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body AskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	switch body.Format {
	case "", "text", "html":
	default:
		s.errorResponse(w, http.StatusBadRequest, "invalid_request", `format must be "text" or "html"`)
		return
	}
	s.ask(w, r, body.Request, body.Format == "html")
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request, req agent.Request, html bool) {
	ctx, span := tracing.Tracer().Start(r.Context(), "ask")
	defer span.End()

	resp, err := s.asker.Ask(ctx, req)
	if err != nil {
		s.writeAskError(w, err)
		return
	}

	out := AskResponse{
		Response:  resp.Answer,
		RequestID: resp.RequestID,
		Model:     resp.Model,
		Turns:     resp.Turns,
		Tools:     resp.ToolsUsed,
	}
	if out.Tools == nil {
		out.Tools = []string{}
	}
	if html {
		rendered, err := render.HTML(resp.Answer)
		if err != nil {
			s.logger.Warn("answer not rendered", "request_id", resp.RequestID, "error", err)
		}
		out.HTML = rendered
	}
	writeJSON(w, http.StatusOK, out, s.logger)
}

func (s *Server) writeAskError(w http.ResponseWriter, err error) {
	cat := agent.CategoryOf(err)
	if cat == "" {
		// Not a run failure: the request itself was rejected.
		s.errorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	f, ok := runFailure[cat]
	if !ok {
		f = runFailure[agent.CategoryOrchestrationExhausted]
	}
	s.errorResponse(w, f.status, string(cat), f.message)
}

func parseAskForm(r *http.Request) (agent.Request, error) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return agent.Request{}, errors.New("invalid form body")
	}

	req := agent.Request{
		Query:  r.PostFormValue("query"),
		UserID: r.PostFormValue("user_id"),
	}
	var err error
	if req.NewInterestRate, err = formFloat(r, "new_interest_rate"); err != nil {
		return req, err
	}
	if req.NewCreditScore, err = formInt(r, "new_credit_score"); err != nil {
		return req, err
	}
	if req.NewIncome, err = formFloat(r, "new_income"); err != nil {
		return req, err
	}
	return req, nil
}

func formFloat(r *http.Request, key string) (*float64, error) {
	v := strings.TrimSpace(r.PostFormValue(key))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, errors.New(key + " must be a number")
	}
	return &f, nil
}

func formInt(r *http.Request, key string) (*int, error) {
	v := strings.TrimSpace(r.PostFormValue(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, errors.New(key + " must be an integer")
	}
	return &n, nil
}
