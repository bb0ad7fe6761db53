package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/member-qa/internal/model"
	"github.com/sells-group/member-qa/internal/resilience"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(ctx context.Context, p Prompt) (Completion, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(Completion), args.Error(1)
}

func testSnapshot() *model.DatasetSnapshot {
	return &model.DatasetSnapshot{
		ID: "snap-llm",
		Records: []model.MemberRecord{
			{ID: "1", Name: "Layla Kawaguchi", Fields: map[string]any{"message": "Planning my trip to London in June"}},
			{ID: "2", Name: "Vikram Desai", Fields: map[string]any{"cars": float64(3)}},
			{ID: "3", Name: "Layla Kawaguchi", Fields: map[string]any{"restaurants": []any{"Nobu"}}},
			{ID: "4", Name: "Amira Khan", Fields: map[string]any{"message": "Booked a table at Dishoom"}},
		},
	}
}

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestAnswer_NoProvider(t *testing.T) {
	e := New(Options{})
	assert.False(t, e.Available())
	assert.Nil(t, e.Guard())

	out := e.Answer(context.Background(), "How many cars does Vikram Desai have?", testSnapshot(), nil, 4000)
	assert.Equal(t, model.OutcomeUnavailable, out.Kind)
	assert.Equal(t, "no llm provider configured", out.Reason)
}

func TestAnswer_Answered(t *testing.T) {
	mp := new(mockProvider)
	q := "When is Layla planning her trip to London?"
	mp.On("Complete", mock.Anything, mock.MatchedBy(func(p Prompt) bool {
		return p.Question == q &&
			strings.Contains(p.Context, "Layla Kawaguchi") &&
			!strings.Contains(p.Context, "Vikram") &&
			strings.Contains(p.Instructions, UnknownReply)
	})).Return(Completion{Text: "  Layla is planning a trip to London in June. ", Model: "m"}, nil).Once()

	e := New(Options{Provider: mp, Retry: fastRetry(2)})
	require.True(t, e.Available())

	out := e.Answer(context.Background(), q, testSnapshot(), nil, 4000)
	require.True(t, out.OK(), out.Reason)
	assert.Equal(t, model.ProvenanceLLM, out.Answer.Provenance)
	assert.Equal(t, "Layla is planning a trip to London in June.", out.Answer.Text)
	mp.AssertExpectations(t)
}

func TestAnswer_UnusableReplies(t *testing.T) {
	tests := []struct {
		reply  string
		reason string
	}{
		{"", "empty reply"},
		{"   ", "empty reply"},
		{"UNKNOWN", "model reported unknown"},
		{"unknown.", "model reported unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.reason+"/"+tt.reply, func(t *testing.T) {
			mp := new(mockProvider)
			mp.On("Complete", mock.Anything, mock.Anything).Return(Completion{Text: tt.reply}, nil)

			out := New(Options{Provider: mp}).Answer(context.Background(), "Vikram Desai cars?", testSnapshot(), nil, 4000)
			assert.Equal(t, model.OutcomeUnavailable, out.Kind)
			assert.Equal(t, tt.reason, out.Reason)
		})
	}
}

func TestAnswer_PermanentErrorNotRetried(t *testing.T) {
	mp := new(mockProvider)
	mp.On("Complete", mock.Anything, mock.Anything).Return(Completion{}, errors.New("invalid model"))

	out := New(Options{Provider: mp, Retry: fastRetry(3)}).Answer(context.Background(), "Vikram Desai cars?", testSnapshot(), nil, 4000)
	assert.Equal(t, model.OutcomeUnavailable, out.Kind)
	assert.Equal(t, "llm permanent", out.Reason)
	mp.AssertNumberOfCalls(t, "Complete", 1)
}

func TestAnswer_TransientErrorRetried(t *testing.T) {
	mp := new(mockProvider)
	mp.On("Complete", mock.Anything, mock.Anything).
		Return(Completion{}, resilience.NewTransientError(errors.New("rate limited"), 429)).Once()
	mp.On("Complete", mock.Anything, mock.Anything).
		Return(Completion{Text: "Vikram Desai has 3 cars."}, nil).Once()

	out := New(Options{Provider: mp, Retry: fastRetry(2)}).Answer(context.Background(), "Vikram Desai cars?", testSnapshot(), nil, 4000)
	require.True(t, out.OK())
	assert.Equal(t, "Vikram Desai has 3 cars.", out.Answer.Text)
	mp.AssertNumberOfCalls(t, "Complete", 2)
}

func TestAnswer_TimeoutIsUnavailable(t *testing.T) {
	mp := new(mockProvider)
	mp.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(Completion{}, context.DeadlineExceeded)

	e := New(Options{Provider: mp, Timeout: 50 * time.Millisecond})

	start := time.Now()
	out := e.Answer(context.Background(), "Vikram Desai cars?", testSnapshot(), nil, 4000)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, model.OutcomeUnavailable, out.Kind)
	assert.Equal(t, "llm timeout", out.Reason)
}

func TestAnswer_CircuitOpens(t *testing.T) {
	mp := new(mockProvider)
	mp.On("Complete", mock.Anything, mock.Anything).Return(Completion{}, errors.New("invalid model"))

	e := New(Options{Provider: mp, FailureThreshold: 2, ResetTimeout: time.Hour, Retry: fastRetry(1)})
	ctx := context.Background()
	for range 2 {
		e.Answer(ctx, "Vikram Desai cars?", testSnapshot(), nil, 4000)
	}
	assert.Equal(t, resilience.CircuitOpen, e.Guard().Breaker().State())

	out := e.Answer(ctx, "Vikram Desai cars?", testSnapshot(), nil, 4000)
	assert.Equal(t, "llm circuit_open", out.Reason)
	mp.AssertNumberOfCalls(t, "Complete", 2)
}

func TestAnswer_BudgetAndEmptySnapshot(t *testing.T) {
	mp := new(mockProvider)
	e := New(Options{Provider: mp})

	out := e.Answer(context.Background(), "Vikram Desai cars?", testSnapshot(), nil, 10)
	assert.Equal(t, "prompt exceeds token budget", out.Reason)

	out = e.Answer(context.Background(), "Vikram Desai cars?", &model.DatasetSnapshot{ID: "empty"}, nil, 4000)
	assert.Equal(t, "empty snapshot", out.Reason)

	out = e.Answer(context.Background(), "Vikram Desai cars?", nil, nil, 4000)
	assert.Equal(t, "empty snapshot", out.Reason)
	mp.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}
