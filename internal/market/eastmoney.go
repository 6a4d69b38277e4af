package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"stock-ai-analyzer/internal/httpx"
	"stock-ai-analyzer/internal/instrument"
)

type EastmoneyAdapter struct {
	baseURL  string
	client   *httpx.Client
	priority int
	timeout  time.Duration
}

type eastmoneyResp struct {
	Data *eastmoneyData `json:"data"`
}

type eastmoneyData struct {
	Name      string  `json:"f58"`
	Code      string  `json:"f57"`
	Price     float64 `json:"f43"`
	ChangePct float64 `json:"f170"`
	Volume    float64 `json:"f47"`
}

func NewEastmoneyAdapter(client *httpx.Client, priority int, timeout time.Duration) *EastmoneyAdapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if client == nil {
		client = httpx.New(timeout)
	}
	return &EastmoneyAdapter{
		baseURL:  "https://push2.eastmoney.com/api/qt/stock/get",
		client:   client,
		priority: priority,
		timeout:  timeout,
	}
}

func (a *EastmoneyAdapter) Name() string           { return "eastmoney" }
func (a *EastmoneyAdapter) Priority() int          { return a.priority }
func (a *EastmoneyAdapter) Timeout() time.Duration { return a.timeout }

func (a *EastmoneyAdapter) Supports(m instrument.Market) bool {
	switch m {
	case instrument.MarketAShare, instrument.MarketIndex, instrument.MarketFund, instrument.MarketHK:
		return true
	}
	return false
}

func (a *EastmoneyAdapter) Fetch(ctx context.Context, code instrument.Code) (Snapshot, error) {
	secid, err := toSecID(code)
	if err != nil {
		return Snapshot{}, permanent(a.Name(), "unsupported symbol", err)
	}

	u, err := url.Parse(a.baseURL)
	if err != nil {
		return Snapshot{}, permanent(a.Name(), "invalid base url", err)
	}
	q := u.Query()
	q.Set("secid", secid)
	q.Set("fields", "f57,f58,f43,f170,f47")
	q.Set("ut", "fa5fd1943c7b386f172d6893dbfba10b")
	q.Set("fltt", "2")
	q.Set("invt", "2")
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return Snapshot{}, permanent(a.Name(), "build request", err)
	}

	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return Snapshot{}, transportError(a.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, statusError(a.Name(), resp.StatusCode)
	}

	var payload eastmoneyResp
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Snapshot{}, permanent(a.Name(), "decode response", err)
	}
	if payload.Data == nil {
		return Snapshot{}, permanent(a.Name(), "empty response data", nil)
	}
	if payload.Data.Price <= 0 {
		return Snapshot{}, permanent(a.Name(), fmt.Sprintf("invalid price for %s", code.Symbol), nil)
	}

	rawBytes, _ := json.Marshal(payload.Data)
	return Snapshot{
		Symbol:    code.Symbol,
		Name:      payload.Data.Name,
		Market:    code.Market,
		Price:     payload.Data.Price,
		ChangePct: payload.Data.ChangePct,
		Volume:    payload.Data.Volume,
		TS:        time.Now().Unix(),
		Source:    a.Name(),
		Raw:       string(rawBytes),
	}, nil
}

// toSecID builds the eastmoney security id: market segment number plus code.
func toSecID(code instrument.Code) (string, error) {
	switch code.Exchange {
	case "sh":
		return "1." + code.Symbol, nil
	case "sz":
		return "0." + code.Symbol, nil
	case "hk":
		return "116." + code.Symbol, nil
	}
	return "", fmt.Errorf("unknown exchange for symbol %s", code.Symbol)
}
