package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/member-qa/internal/cache"
	"github.com/sells-group/member-qa/internal/hybrid"
	"github.com/sells-group/member-qa/internal/model"
	"github.com/sells-group/member-qa/internal/monitoring"
)

type mockAsker struct {
	mock.Mock
}

func (m *mockAsker) Ask(ctx context.Context, question string) (*hybrid.Response, error) {
	args := m.Called(ctx, question)
	resp, _ := args.Get(0).(*hybrid.Response)
	return resp, args.Error(1)
}

func noSnapshot() *model.DatasetSnapshot { return nil }

func noStats() *monitoring.MetricsSnapshot { return &monitoring.MetricsSnapshot{} }

func postAsk(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAskEndpoint_Answered(t *testing.T) {
	a := new(mockAsker)
	a.On("Ask", mock.Anything, "How many cars does Vikram Desai have?").Return(&hybrid.Response{
		Answer:    model.Answer{Text: "Vikram Desai has 3 car(s).", Provenance: model.ProvenanceDeterministic},
		RequestID: "req-1",
	}, nil)

	payload, _ := json.Marshal(map[string]string{"question": "How many cars does Vikram Desai have?"})
	rr := postAsk(t, newRouter(a, noSnapshot, noStats, []string{"*"}), string(payload))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "req-1", rr.Header().Get("X-Request-Id"))
	assert.Empty(t, rr.Header().Get("Warning"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Vikram Desai has 3 car(s).", body["answer"])
	assert.Equal(t, "deterministic", body["provenance"])
	a.AssertExpectations(t)
}

func TestAskEndpoint_StaleHeader(t *testing.T) {
	a := new(mockAsker)
	a.On("Ask", mock.Anything, mock.Anything).Return(&hybrid.Response{
		Answer: model.Answer{Text: "x", Provenance: model.ProvenanceLLM},
		Stale:  true,
	}, nil)

	rr := postAsk(t, newRouter(a, noSnapshot, noStats, []string{"*"}), `{"question":"q"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Warning"), "Stale")
}

func TestAskEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		msg    string
	}{
		{"invalid json", `{"question":`, nil, http.StatusBadRequest, "invalid request body"},
		{"empty question", `{"question":"  "}`, hybrid.ErrEmptyQuestion, http.StatusBadRequest, "question cannot be empty"},
		{"no data", `{"question":"q"}`, cache.ErrNoDataAvailable, http.StatusServiceUnavailable, "member data unavailable"},
		{"unexpected", `{"question":"q"}`, errors.New("boom"), http.StatusInternalServerError, "error processing question"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := new(mockAsker)
			if tt.err != nil {
				a.On("Ask", mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			rr := postAsk(t, newRouter(a, noSnapshot, noStats, []string{"*"}), tt.body)
			assert.Equal(t, tt.status, rr.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.msg, body["error"])
			if tt.err == nil {
				a.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(new(mockAsker), noSnapshot, noStats, []string{"*"}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "snapshot_id")
}

func TestHealthEndpoint_WithSnapshot(t *testing.T) {
	snap := &model.DatasetSnapshot{
		ID:        "snap-1",
		FetchedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Records:   []model.MemberRecord{{ID: "1"}, {ID: "2"}},
	}
	current := func() *model.DatasetSnapshot { return snap }

	rr := httptest.NewRecorder()
	newRouter(new(mockAsker), current, noStats, []string{"*"}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "snap-1", body["snapshot_id"])
	assert.EqualValues(t, 2, body["records"])
	assert.Equal(t, "2025-03-01T12:00:00Z", body["fetched_at"])
}

func TestRootEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(new(mockAsker), noSnapshot, noStats, []string{"*"}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "member-qa", body["service"])
	assert.Contains(t, body["endpoints"], "/ask")
}

func TestCORS(t *testing.T) {
	h := newRouter(new(mockAsker), noSnapshot, noStats, []string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/ask", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(new(mockAsker), noSnapshot, noStats, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	newRouter(new(mockAsker), noSnapshot, noStats, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ask", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestStatsEndpoint(t *testing.T) {
	collector := monitoring.NewCollector()
	collector.Observe(monitoring.Observation{Provenance: model.ProvenanceDeterministic, TriedLLM: true, Declined: []string{"llm timeout"}})
	collector.Observe(monitoring.Observation{Provenance: model.ProvenanceUnresolved})
	stats := func() *monitoring.MetricsSnapshot { return collector.Collect(1) }

	rr := httptest.NewRecorder()
	newRouter(new(mockAsker), noSnapshot, stats, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, 1, body.LLMFallbacks)
	assert.Equal(t, 1, body.DeclineReasons["llm timeout"])
}
