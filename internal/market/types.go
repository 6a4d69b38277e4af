package market

import (
	"context"
	"time"

	"stock-ai-analyzer/internal/instrument"
)

// Snapshot is an immutable point-in-time quote. Each fetch builds a new one.
type Snapshot struct {
	Symbol    string            `json:"symbol"`
	Name      string            `json:"name,omitempty"`
	Market    instrument.Market `json:"market"`
	Price     float64           `json:"price"`
	ChangePct float64           `json:"change_pct"`
	Volume    float64           `json:"volume"`
	TS        int64             `json:"ts"`
	Source    string            `json:"source"`
	Raw       string            `json:"raw,omitempty"`
}

// Adapter wraps one upstream quote provider. Adapters never retry; retry and
// fallback policy is owned by the Fetcher.
type Adapter interface {
	Name() string
	Supports(m instrument.Market) bool
	Priority() int
	Timeout() time.Duration
	Fetch(ctx context.Context, code instrument.Code) (Snapshot, error)
}
