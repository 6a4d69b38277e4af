package analysis

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"stock-ai-analyzer/internal/instrument"
	"stock-ai-analyzer/internal/llm"
	"stock-ai-analyzer/internal/market"
	"stock-ai-analyzer/internal/prompt"
	"stock-ai-analyzer/internal/store"
)

// Stage names the pipeline step a request is in. Every stage consumes the
// previous one's output; none may be skipped.
type Stage string

const (
	StageResolving       Stage = "resolving"
	StageFetching        Stage = "fetching"
	StageBuildingContext Stage = "building_context"
	StageStreamingLLM    Stage = "streaming_llm"
	StageDone            Stage = "done"
	StageFailed          Stage = "error"
	StageCancelled       Stage = "cancelled"
)

// StageError wraps a failure with the stage it occurred in, so the caller can
// render a precise diagnostic instead of a generic message.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

type Completer interface {
	Complete(ctx context.Context, pc prompt.Context) (*llm.Stream, error)
	ModelName() string
}

type Recorder interface {
	InsertUsage(store.UsageRecord) error
	InsertAnalysis(store.AnalysisRecord) error
}

type Config struct {
	// StreamTimeout bounds the whole LLM stream unless the request carries
	// its own timeout. Zero means no bound.
	StreamTimeout time.Duration
}

type Orchestrator struct {
	resolver      *instrument.Resolver
	fetcher       *market.Fetcher
	completer     Completer
	recorder      Recorder
	streamTimeout time.Duration
}

func New(resolver *instrument.Resolver, fetcher *market.Fetcher, completer Completer, recorder Recorder, cfg Config) *Orchestrator {
	return &Orchestrator{
		resolver:      resolver,
		fetcher:       fetcher,
		completer:     completer,
		recorder:      recorder,
		streamTimeout: cfg.StreamTimeout,
	}
}

type Request struct {
	Code string
	Kind prompt.Kind
	// Timeout, when positive, overrides the configured stream timeout.
	Timeout time.Duration
}

// Chunk is one unit of the analysis stream: a text delta, or the final
// usage record when Done is set.
type Chunk struct {
	Delta string     `json:"delta,omitempty"`
	Usage *llm.Usage `json:"usage,omitempty"`
	Done  bool       `json:"done,omitempty"`
}

// Result is the synchronous part of one analysis: everything resolved and
// fetched before the LLM stream starts.
type Result struct {
	RequestID string
	Code      instrument.Code
	Snapshot  market.Snapshot
	Attempts  []market.Attempt
	Model     string
	Stream    *Stream
}

// Analyze runs resolve, fetch and context building synchronously, then
// returns a stream over the LLM response. Each request is independent; the
// orchestrator holds no per-request state.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*Result, error) {
	requestID := uuid.NewString()
	started := time.Now()

	code, err := o.resolver.Resolve(req.Code)
	if err != nil {
		return nil, o.fail(requestID, req, instrument.Code{}, market.Snapshot{}, started, &StageError{Stage: StageResolving, Err: err})
	}

	snap, attempts, err := o.fetcher.Fetch(ctx, code)
	if err != nil {
		return nil, o.fail(requestID, req, code, market.Snapshot{}, started, &StageError{Stage: StageFetching, Err: err})
	}

	pc, err := prompt.Build(snap, req.Kind)
	if err != nil {
		return nil, o.fail(requestID, req, code, snap, started, &StageError{Stage: StageBuildingContext, Err: err})
	}

	timeout := o.streamTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	streamCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	ls, err := o.completer.Complete(streamCtx, pc)
	if err != nil {
		cancel()
		return nil, o.fail(requestID, req, code, snap, started, &StageError{Stage: StageStreamingLLM, Err: err})
	}

	res := &Result{
		RequestID: requestID,
		Code:      code,
		Snapshot:  snap,
		Attempts:  attempts,
		Model:     o.completer.ModelName(),
	}
	res.Stream = &Stream{
		inner:  ls,
		cancel: cancel,
		stage:  StageStreamingLLM,
		onFinish: func(usage llm.Usage, streamErr error, cancelled bool) {
			o.record(requestID, req, code, snap, started, usage, streamErr, cancelled)
		},
	}
	return res, nil
}

func (o *Orchestrator) fail(requestID string, req Request, code instrument.Code, snap market.Snapshot, started time.Time, serr *StageError) error {
	o.record(requestID, req, code, snap, started, llm.Usage{}, serr, false)
	return serr
}

// record persists one run's outcome. Best effort: storage problems are
// logged, never surfaced into the stream.
func (o *Orchestrator) record(requestID string, req Request, code instrument.Code, snap market.Snapshot, started time.Time, usage llm.Usage, runErr error, cancelled bool) {
	if o.recorder == nil {
		return
	}
	status := "done"
	errMsg := ""
	switch {
	case runErr != nil:
		status = "error"
		errMsg = runErr.Error()
	case cancelled:
		status = "cancelled"
	}
	now := time.Now()
	if err := o.recorder.InsertUsage(store.UsageRecord{
		TS:               started.Unix(),
		RequestID:        requestID,
		Model:            o.completer.ModelName(),
		Kind:             string(req.Kind),
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		DurationMs:       now.Sub(started).Milliseconds(),
		Success:          runErr == nil && !cancelled,
		ErrorMessage:     errMsg,
	}); err != nil {
		log.Printf("record usage error: %v", err)
	}
	if err := o.recorder.InsertAnalysis(store.AnalysisRecord{
		RequestID: requestID,
		TS:        started.Unix(),
		Code:      req.Code,
		Market:    string(code.Market),
		Kind:      string(req.Kind),
		Model:     o.completer.ModelName(),
		Source:    snap.Source,
		Status:    status,
		Error:     errMsg,
	}); err != nil {
		log.Printf("record analysis error: %v", err)
	}
}

// Stream delivers analysis chunks to the caller. Single consumer, not
// restartable. The terminal sequence is one Done chunk carrying usage, then
// io.EOF; on failure Recv returns a *StageError and the stream is finished.
type Stream struct {
	inner  *llm.Stream
	cancel context.CancelFunc

	mu    sync.Mutex
	stage Stage
	done  bool

	onFinish   func(usage llm.Usage, err error, cancelled bool)
	finishOnce sync.Once
}

func (s *Stream) Recv() (Chunk, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return Chunk{}, io.EOF
	}
	s.mu.Unlock()

	ch, err := s.inner.Recv()
	if err == io.EOF {
		usage := s.inner.Usage()
		s.setDone(StageDone)
		s.finish(nil, false)
		return Chunk{Usage: &usage, Done: true}, nil
	}
	if err != nil {
		serr := &StageError{Stage: StageStreamingLLM, Err: err}
		s.setDone(StageFailed)
		s.finish(serr, false)
		return Chunk{}, serr
	}
	return Chunk{Delta: ch.Delta, Usage: ch.Usage}, nil
}

// Usage reports tokens accounted so far, including after cancellation.
func (s *Stream) Usage() llm.Usage { return s.inner.Usage() }

func (s *Stream) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Close abandons the stream. Cooperative: no further chunks are fetched and
// the underlying connection is released. Partial usage is still recorded.
func (s *Stream) Close() {
	s.mu.Lock()
	wasDone := s.done
	s.done = true
	if !wasDone {
		s.stage = StageCancelled
	}
	s.mu.Unlock()
	s.finish(nil, !wasDone)
}

func (s *Stream) setDone(stage Stage) {
	s.mu.Lock()
	s.done = true
	s.stage = stage
	s.mu.Unlock()
}

func (s *Stream) finish(err error, cancelled bool) {
	s.finishOnce.Do(func() {
		usage := s.inner.Usage()
		s.inner.Close()
		s.cancel()
		if s.onFinish != nil {
			s.onFinish(usage, err, cancelled)
		}
	})
}
