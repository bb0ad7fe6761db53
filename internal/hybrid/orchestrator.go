// Package hybrid answers member questions by trying the LLM engine first and
// falling back to the deterministic lookup, then to a fixed unresolved reply.
package hybrid

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/member-qa/internal/cache"
	"github.com/sells-group/member-qa/internal/model"
	"github.com/sells-group/member-qa/internal/monitoring"
	"github.com/sells-group/member-qa/internal/quality"
)

// State is a step of the per-request state machine.
type State string

const (
	StateStart              State = "START"
	StateTryLLM             State = "TRY_LLM"
	StateTryDeterministic   State = "TRY_DETERMINISTIC"
	StateUnresolvedResponse State = "UNRESOLVED_RESPONSE"
	StateEnd                State = "END"
)

// UnresolvedText is the answer given when neither engine produced one.
const UnresolvedText = "I couldn't find information about that in the member data."

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = eris.New("hybrid: empty question")

// SnapshotSource yields the dataset snapshot. *cache.Cache implements it.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, maxAge time.Duration) (*model.DatasetSnapshot, error)
}

// Resolver interprets a question. *resolver.Resolver implements it.
type Resolver interface {
	Resolve(question string, snap *model.DatasetSnapshot, profile *model.Profile) model.ResolvedQuery
}

// Lookup answers a resolved query from the snapshot. *lookup.Engine implements it.
type Lookup interface {
	Answer(q model.ResolvedQuery, snap *model.DatasetSnapshot) model.Outcome
}

// LLM answers a question with a language model. *llm.Engine implements it.
type LLM interface {
	Available() bool
	Answer(ctx context.Context, question string, snap *model.DatasetSnapshot, profile *model.Profile, tokenBudget int) model.Outcome
}

// Observer receives the outcome of every answered question.
// *monitoring.Collector implements it.
type Observer interface {
	Observe(o monitoring.Observation)
}

// Options configures an Orchestrator.
type Options struct {
	Snapshots SnapshotSource
	Resolver  Resolver
	Lookup    Lookup
	LLM       LLM      // optional
	Observer  Observer // optional

	// MaxAge is how old a snapshot may be before a refresh. Default: 5m.
	MaxAge time.Duration

	// TokenBudget caps the LLM prompt. Default: 6000.
	TokenBudget int

	// MaxConcurrent bounds AskBatch fan-out. Default: 4.
	MaxConcurrent int
}

// Response is the result of one Ask.
type Response struct {
	Answer     model.Answer `json:"answer"`
	Path       []State      `json:"path"`
	Reasons    []string     `json:"reasons,omitempty"`
	Stale      bool         `json:"stale"`
	RequestID  string       `json:"request_id"`
	SnapshotID string       `json:"snapshot_id"`
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	opts Options

	mu      sync.Mutex
	profile *model.Profile
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 5 * time.Minute
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = 6000
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Orchestrator{opts: opts}
}

// Ask answers one question. The only errors are ErrEmptyQuestion and
// cache.ErrNoDataAvailable (or a context error while waiting on a fetch);
// every other failure ends in an answer with provenance unresolved.
func (o *Orchestrator) Ask(ctx context.Context, question string) (*Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	start := time.Now()
	resp := &Response{RequestID: uuid.NewString()}
	log := zap.L().With(zap.String("request_id", resp.RequestID))

	snap, err := o.opts.Snapshots.GetSnapshot(ctx, o.opts.MaxAge)
	if err != nil {
		var stale *cache.StaleDataWarning
		if !errors.As(err, &stale) || snap == nil {
			return nil, eris.Wrap(err, "hybrid: snapshot")
		}
		resp.Stale = true
		log.Warn("hybrid: answering from stale snapshot",
			zap.String("snapshot_id", stale.SnapshotID),
			zap.Duration("age", stale.Age),
		)
	}
	resp.SnapshotID = snap.ID
	profile := o.profileFor(snap)

	state := StateStart
	resp.Path = append(resp.Path, state)
	for state != StateEnd {
		switch state {
		case StateStart:
			if o.opts.LLM != nil && o.opts.LLM.Available() {
				state = StateTryLLM
			} else {
				state = StateTryDeterministic
			}

		case StateTryLLM:
			out := o.opts.LLM.Answer(ctx, question, snap, profile, o.opts.TokenBudget)
			if out.OK() {
				resp.Answer = out.Answer
				state = StateEnd
				break
			}
			resp.Reasons = append(resp.Reasons, out.Reason)
			log.Debug("hybrid: llm declined", zap.String("reason", out.Reason))
			state = StateTryDeterministic

		case StateTryDeterministic:
			q := o.opts.Resolver.Resolve(question, snap, profile)
			out := o.opts.Lookup.Answer(q, snap)
			if out.OK() {
				resp.Answer = out.Answer
				state = StateEnd
				break
			}
			resp.Reasons = append(resp.Reasons, out.Reason)
			log.Debug("hybrid: lookup unresolved",
				zap.String("reason", out.Reason),
				zap.String("attribute", q.Attribute),
				zap.String("confidence", string(q.Confidence)),
			)
			state = StateUnresolvedResponse

		case StateUnresolvedResponse:
			resp.Answer = model.Answer{Text: UnresolvedText, Provenance: model.ProvenanceUnresolved}
			state = StateEnd
		}
		resp.Path = append(resp.Path, state)
	}

	if o.opts.Observer != nil {
		o.opts.Observer.Observe(monitoring.Observation{
			Provenance: resp.Answer.Provenance,
			Declined:   resp.Reasons,
			TriedLLM:   slices.Contains(resp.Path, StateTryLLM),
			Stale:      resp.Stale,
			Latency:    time.Since(start),
		})
	}

	log.Info("hybrid: answered",
		zap.String("provenance", string(resp.Answer.Provenance)),
		zap.String("snapshot_id", resp.SnapshotID),
		zap.Bool("stale", resp.Stale),
	)
	return resp, nil
}

// BatchItem pairs a question with its response or error.
type BatchItem struct {
	Question string
	Response *Response
	Err      error
}

// AskBatch answers questions concurrently, at most MaxConcurrent at a time.
// Results are in input order. Per-question errors are recorded on the item;
// the batch fails only when no data is available at all.
func (o *Orchestrator) AskBatch(ctx context.Context, questions []string) ([]BatchItem, error) {
	items := make([]BatchItem, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxConcurrent)
	for i, q := range questions {
		items[i].Question = q
		g.Go(func() error {
			resp, err := o.Ask(gctx, q)
			items[i].Response = resp
			items[i].Err = err
			if errors.Is(err, cache.ErrNoDataAvailable) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return items, eris.Wrap(err, "hybrid: batch")
	}
	return items, nil
}

// profileFor returns the profile of snap, building it once per snapshot ID.
func (o *Orchestrator) profileFor(snap *model.DatasetSnapshot) *model.Profile {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.profile != nil && o.profile.SnapshotID == snap.ID {
		return o.profile
	}
	o.profile = quality.BuildProfile(snap)
	return o.profile
}
