package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugget/loanagent/internal/agent"
	"github.com/nugget/loanagent/internal/bank"
	"github.com/nugget/loanagent/internal/connwatch"
	"github.com/nugget/loanagent/internal/events"
	"github.com/nugget/loanagent/internal/tools"
	"github.com/nugget/loanagent/internal/usage"
)

type fakeAsker struct {
	mu   sync.Mutex
	got  []agent.Request
	resp *agent.Response
	err  error
}

func (f *fakeAsker) Ask(_ context.Context, req agent.Request) (*agent.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeAsker) last(t *testing.T) agent.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.got)
	return f.got[len(f.got)-1]
}

type fakeUsage struct {
	sum        *usage.Summary
	err        error
	start, end time.Time
}

func (f *fakeUsage) Summary(_ context.Context, start, end time.Time) (*usage.Summary, error) {
	f.start, f.end = start, end
	return f.sum, f.err
}

type fakeHealth []connwatch.Status

func (f fakeHealth) Status() []connwatch.Status { return f }

func (f fakeHealth) Healthy() bool {
	for _, s := range f {
		if s.Critical && !s.Ready {
			return false
		}
	}
	return true
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	store := bank.NewMemoryStore()
	for _, a := range bank.DemoAccounts {
		store.PutAccount(a)
	}
	for _, l := range bank.DemoLoans {
		store.PutLoan(l)
	}
	b := tools.NewBanking(store, tools.MarketRates{Fixed30: 6.875, Fixed15: 6.125, ARM51: 5.75}, quietLogger())
	r, err := tools.NewRegistry(b.Tools()...)
	require.NoError(t, err)
	return r
}

func newTestServer(t *testing.T, asker Asker) *Server {
	t.Helper()
	return NewServer("127.0.0.1", 0, asker, testRegistry(t), quietLogger())
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func errorCategory(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "no error object in %v", body)
	return e["category"].(string)
}

func okResponse() *agent.Response {
	return &agent.Response{
		Answer:    "Your balance is **$245,000.00**.",
		RequestID: "r_0123",
		Model:     "test-model",
		Turns:     2,
		ToolsUsed: []string{tools.ToolLoanDetail},
	}
}

func TestAskJSON(t *testing.T) {
	asker := &fakeAsker{resp: okResponse()}
	h := newTestServer(t, asker).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/ask",
		strings.NewReader(`{"query":"What is my balance?","user_id":"U1001","new_interest_rate":5.25}`))
	rec, body := do(t, h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Your balance is **$245,000.00**.", body["response"])
	assert.Equal(t, "r_0123", body["request_id"])
	assert.EqualValues(t, 2, body["turns"])
	assert.Equal(t, []any{tools.ToolLoanDetail}, body["tools"])
	assert.NotContains(t, body, "html")

	got := asker.last(t)
	assert.Equal(t, "What is my balance?", got.Query)
	assert.Equal(t, "U1001", got.UserID)
	require.NotNil(t, got.NewInterestRate)
	assert.InDelta(t, 5.25, *got.NewInterestRate, 1e-9)
	assert.Nil(t, got.NewCreditScore)
}

func TestAskJSON_HTML(t *testing.T) {
	h := newTestServer(t, &fakeAsker{resp: okResponse()}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/ask",
		strings.NewReader(`{"query":"balance","user_id":"U1001","format":"html"}`))
	rec, body := do(t, h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["html"], "<strong>$245,000.00</strong>")
}

func TestAskJSON_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"query":`},
		{"bad format", `{"query":"hi","user_id":"U1","format":"pdf"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeAsker{resp: okResponse()}).Handler()
			rec, body := do(t, h, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", errorCategory(t, body))
		})
	}
}

func TestAsk_ErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantStatus   int
		wantCategory string
		wantMessage  string
	}{
		{
			name:         "validation",
			err:          agent.ErrEmptyQuery,
			wantStatus:   http.StatusBadRequest,
			wantCategory: "invalid_request",
			wantMessage:  agent.ErrEmptyQuery.Error(),
		},
		{
			name:         "adapter",
			err:          &agent.RunError{Category: agent.CategoryAdapterError, Err: errors.New("connection refused to 10.0.0.5")},
			wantStatus:   http.StatusBadGateway,
			wantCategory: "adapter_error",
		},
		{
			name:         "timeout",
			err:          &agent.RunError{Category: agent.CategoryRequestTimeout, Err: context.DeadlineExceeded},
			wantStatus:   http.StatusGatewayTimeout,
			wantCategory: "request_timeout",
		},
		{
			name:         "exhausted",
			err:          fmt.Errorf("run: %w", &agent.RunError{Category: agent.CategoryOrchestrationExhausted}),
			wantStatus:   http.StatusInternalServerError,
			wantCategory: "orchestration_exhausted",
		},
		{
			name:         "canceled",
			err:          &agent.RunError{Category: agent.CategoryCanceled, Err: context.Canceled},
			wantStatus:   http.StatusServiceUnavailable,
			wantCategory: "canceled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeAsker{err: tt.err}).Handler()
			req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"query":"hi","user_id":"U1001"}`))
			rec, body := do(t, h, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCategory, errorCategory(t, body))
			msg := body["error"].(map[string]any)["message"].(string)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, msg)
			}
			assert.NotContains(t, msg, "10.0.0.5")
		})
	}
}

func TestAskForm(t *testing.T) {
	asker := &fakeAsker{resp: okResponse()}
	h := newTestServer(t, asker).Handler()

	form := url.Values{
		"query":            {"Should I refinance?"},
		"user_id":          {"U1002"},
		"new_credit_score": {"780"},
		"new_income":       {"120000"},
	}
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec, body := do(t, h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r_0123", body["request_id"])

	got := asker.last(t)
	assert.Equal(t, "Should I refinance?", got.Query)
	assert.Equal(t, "U1002", got.UserID)
	assert.Nil(t, got.NewInterestRate)
	require.NotNil(t, got.NewCreditScore)
	assert.Equal(t, 780, *got.NewCreditScore)
	require.NotNil(t, got.NewIncome)
	assert.InDelta(t, 120000, *got.NewIncome, 1e-9)
}

func TestAskForm_InvalidNumber(t *testing.T) {
	asker := &fakeAsker{resp: okResponse()}
	h := newTestServer(t, asker).Handler()

	form := url.Values{"query": {"hi"}, "user_id": {"U1001"}, "new_credit_score": {"great"}}
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec, body := do(t, h, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorCategory(t, body))
	assert.Empty(t, asker.got)
}

func TestHealth(t *testing.T) {
	t.Run("no check", func(t *testing.T) {
		rec, body := do(t, newTestServer(t, &fakeAsker{}).Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("database down", func(t *testing.T) {
		s := newTestServer(t, &fakeAsker{})
		s.SetHealthReporter(fakeHealth{
			{Name: "database", Critical: true, Ready: false, Failures: 3},
			{Name: "model", Critical: true, Ready: true},
		})
		rec, body := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "degraded", body["status"])
		deps := body["dependencies"].([]any)
		require.Len(t, deps, 2)
		db := deps[0].(map[string]any)
		assert.Equal(t, "database", db["name"])
		assert.Equal(t, false, db["ready"])
		assert.EqualValues(t, 3, db["consecutive_failures"])
	})

	t.Run("all up", func(t *testing.T) {
		s := newTestServer(t, &fakeAsker{})
		s.SetHealthReporter(fakeHealth{{Name: "database", Critical: true, Ready: true}})
		rec, body := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "healthy", body["status"])
	})
}

func TestTools(t *testing.T) {
	rec, body := do(t, newTestServer(t, &fakeAsker{}).Handler(), httptest.NewRequest(http.MethodGet, "/v1/tools", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	list, ok := body["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 6)
	first := list[0].(map[string]any)
	assert.Equal(t, tools.ToolMortgageRate, first["name"])
	assert.Equal(t, "query", first["kind"])
}

func TestToolCall(t *testing.T) {
	tests := []struct {
		name         string
		tool         string
		body         string
		wantStatus   int
		wantCategory string
		wantResult   string
	}{
		{
			name:       "json arguments",
			tool:       tools.ToolLoanDetail,
			body:       `{"user_id":"U1001"}`,
			wantStatus: http.StatusOK,
			wantResult: "Loan Details for User U1001",
		},
		{
			name:       "bare user id",
			tool:       tools.ToolFinancialInfo,
			body:       "U1001",
			wantStatus: http.StatusOK,
			wantResult: "Financial Information for User U1001",
		},
		{
			name:       "not found is a result",
			tool:       tools.ToolLoanDetail,
			body:       `{"user_id":"U9999"}`,
			wantStatus: http.StatusOK,
			wantResult: "U9999",
		},
		{
			name:         "unknown tool",
			tool:         "wire_transfer",
			body:         `{}`,
			wantStatus:   http.StatusNotFound,
			wantCategory: tools.CategoryUnknownTool,
		},
		{
			name:         "missing argument",
			tool:         tools.ToolLoanDetail,
			body:         `{}`,
			wantStatus:   http.StatusBadRequest,
			wantCategory: tools.CategoryInvalidArguments,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeAsker{}).Handler()
			req := httptest.NewRequest(http.MethodPost, "/v1/tools/"+tt.tool, strings.NewReader(tt.body))
			rec, body := do(t, h, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCategory != "" {
				assert.Equal(t, tt.wantCategory, errorCategory(t, body))
				return
			}
			assert.Equal(t, tt.tool, body["tool"])
			assert.Contains(t, body["result"], tt.wantResult)
		})
	}
}

func TestUsage(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rec, _ := do(t, newTestServer(t, &fakeAsker{}).Handler(), httptest.NewRequest(http.MethodGet, "/v1/usage", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("window", func(t *testing.T) {
		u := &fakeUsage{sum: &usage.Summary{Runs: 3, FailedRuns: 1}}
		s := newTestServer(t, &fakeAsker{})
		s.SetUsageStore(u)

		rec, body := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/v1/usage?hours=6", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 6, body["window_hours"])
		sum := body["summary"].(map[string]any)
		assert.EqualValues(t, 3, sum["runs"])
		assert.InDelta(t, 6*time.Hour, u.end.Sub(u.start), float64(time.Second))
	})

	t.Run("bad hours", func(t *testing.T) {
		s := newTestServer(t, &fakeAsker{})
		s.SetUsageStore(&fakeUsage{})
		rec, _ := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/v1/usage?hours=-1", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		s := newTestServer(t, &fakeAsker{})
		s.SetUsageStore(&fakeUsage{err: errors.New("disk I/O error")})
		rec, body := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/v1/usage", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, body["error"].(map[string]any)["message"], "disk")
	})
}

func TestVersion(t *testing.T) {
	rec, body := do(t, newTestServer(t, &fakeAsker{}).Handler(), httptest.NewRequest(http.MethodGet, "/v1/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "go_version")
}

func TestEvents_Disabled(t *testing.T) {
	rec, _ := do(t, newTestServer(t, &fakeAsker{}).Handler(), httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents_Stream(t *testing.T) {
	bus := events.New()
	s := newTestServer(t, &fakeAsker{})
	s.SetEventBus(bus)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	// The subscription is registered after the upgrade, so keep
	// publishing until the first event arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				bus.Publish(events.Event{
					Timestamp: time.Now(),
					Source:    events.SourceAgent,
					Kind:      events.KindRunComplete,
					Data:      map[string]any{"request_id": "r_1"},
				})
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got events.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, events.SourceAgent, got.Source)
	assert.Equal(t, events.KindRunComplete, got.Kind)
	assert.Equal(t, "r_1", got.Data["request_id"])
}
