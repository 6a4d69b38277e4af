package market

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"stock-ai-analyzer/internal/instrument"
)

// Attempt records one adapter invocation for diagnostics.
type Attempt struct {
	Source string    `json:"source"`
	Kind   ErrorKind `json:"kind"`
	Error  string    `json:"error"`
}

// FetchError is returned only when every eligible adapter failed. It carries
// the full attempt list so the caller can tell "market closed" from "all
// providers down".
type FetchError struct {
	Market   instrument.Market
	Symbol   string
	Attempts []Attempt
}

func (e *FetchError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s(%s): %s", a.Source, a.Kind, a.Error))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("no source supports market %s", e.Market)
	}
	return fmt.Sprintf("all sources failed for %s: %s", e.Symbol, strings.Join(parts, "; "))
}

// Fetcher tries adapters in priority order and returns the first success.
type Fetcher struct {
	adapters []Adapter
}

func NewFetcher(adapters ...Adapter) *Fetcher {
	return &Fetcher{adapters: adapters}
}

// Fetch short-circuits on the first successful adapter. Failed attempts made
// before the success are still reported. Adapters sharing a priority keep
// their declaration order.
func (f *Fetcher) Fetch(ctx context.Context, code instrument.Code) (Snapshot, []Attempt, error) {
	eligible := make([]Adapter, 0, len(f.adapters))
	for _, a := range f.adapters {
		if a.Supports(code.Market) {
			eligible = append(eligible, a)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Priority() < eligible[j].Priority()
	})

	attempts := make([]Attempt, 0, len(eligible))
	for _, a := range eligible {
		snap, err := f.tryOne(ctx, a, code)
		if err == nil {
			return snap, attempts, nil
		}
		attempts = append(attempts, toAttempt(a.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return Snapshot{}, attempts, &FetchError{Market: code.Market, Symbol: code.Symbol, Attempts: attempts}
}

func (f *Fetcher) tryOne(ctx context.Context, a Adapter, code instrument.Code) (Snapshot, error) {
	if t := a.Timeout(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	return a.Fetch(ctx, code)
}

func toAttempt(source string, err error) Attempt {
	if se, ok := err.(*SourceError); ok {
		return Attempt{Source: source, Kind: se.Kind, Error: se.Error()}
	}
	return Attempt{Source: source, Kind: KindTransient, Error: err.Error()}
}
