package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stock-ai-analyzer/internal/httpx"
	"stock-ai-analyzer/internal/instrument"
)

// TencentAdapter reads qt.gtimg.cn, the third independent quote source.
type TencentAdapter struct {
	baseURL  string
	client   *httpx.Client
	priority int
	timeout  time.Duration
}

func NewTencentAdapter(client *httpx.Client, priority int, timeout time.Duration) *TencentAdapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if client == nil {
		client = httpx.New(timeout)
	}
	return &TencentAdapter{
		baseURL:  "https://qt.gtimg.cn/q=",
		client:   client,
		priority: priority,
		timeout:  timeout,
	}
}

func (a *TencentAdapter) Name() string           { return "tencent" }
func (a *TencentAdapter) Priority() int          { return a.priority }
func (a *TencentAdapter) Timeout() time.Duration { return a.timeout }

func (a *TencentAdapter) Supports(m instrument.Market) bool {
	switch m {
	case instrument.MarketAShare, instrument.MarketIndex, instrument.MarketHK:
		return true
	}
	return false
}

func (a *TencentAdapter) Fetch(ctx context.Context, code instrument.Code) (Snapshot, error) {
	req, err := http.NewRequest(http.MethodGet, a.baseURL+tencentSymbol(code), nil)
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

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, transportError(a.Name(), err)
	}
	snap, ok := a.parseLine(string(data), code)
	if !ok {
		return Snapshot{}, permanent(a.Name(), fmt.Sprintf("no quote in response for %s", code.Symbol), nil)
	}
	return snap, nil
}

// parseLine handles tencent's tilde-separated protocol:
//
//	v_sh600000="1~浦发银行~600000~10.50~10.40~10.41~...";
//
// Field 3 is price, field 4 preclose, field 6 volume, field 32 change pct.
func (a *TencentAdapter) parseLine(line string, code instrument.Code) (Snapshot, bool) {
	parts := strings.SplitN(strings.TrimSpace(line), "=", 2)
	if len(parts) < 2 {
		return Snapshot{}, false
	}
	payload := strings.Trim(strings.Trim(strings.TrimSpace(parts[1]), ";"), "\"")
	fields := strings.Split(payload, "~")
	if len(fields) < 7 {
		return Snapshot{}, false
	}
	name := fields[1]
	price := parseFloat(fields[3])
	preclose := parseFloat(fields[4])
	volume := parseFloat(fields[6])
	if price <= 0 {
		return Snapshot{}, false
	}
	changePct := 0.0
	if len(fields) > 32 {
		changePct = parseFloat(fields[32])
	}
	if changePct == 0 && preclose > 0 {
		changePct = (price - preclose) / preclose * 100
	}
	return Snapshot{
		Symbol:    code.Symbol,
		Name:      name,
		Market:    code.Market,
		Price:     price,
		ChangePct: changePct,
		Volume:    volume,
		TS:        time.Now().Unix(),
		Source:    a.Name(),
		Raw:       payload,
	}, true
}

func tencentSymbol(code instrument.Code) string {
	if code.Market == instrument.MarketHK {
		return "r_hk" + code.Symbol
	}
	return code.Exchange + code.Symbol
}
