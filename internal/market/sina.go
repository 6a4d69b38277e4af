package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stock-ai-analyzer/internal/httpx"
	"stock-ai-analyzer/internal/instrument"
)

type SinaAdapter struct {
	baseURL  string
	client   *httpx.Client
	priority int
	timeout  time.Duration
}

func NewSinaAdapter(client *httpx.Client, priority int, timeout time.Duration) *SinaAdapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if client == nil {
		client = httpx.New(timeout)
	}
	return &SinaAdapter{
		baseURL:  "https://hq.sinajs.cn/list=",
		client:   client,
		priority: priority,
		timeout:  timeout,
	}
}

func (a *SinaAdapter) Name() string           { return "sina" }
func (a *SinaAdapter) Priority() int          { return a.priority }
func (a *SinaAdapter) Timeout() time.Duration { return a.timeout }

func (a *SinaAdapter) Supports(m instrument.Market) bool {
	switch m {
	case instrument.MarketAShare, instrument.MarketIndex, instrument.MarketFund, instrument.MarketHK:
		return true
	}
	return false
}

func (a *SinaAdapter) Fetch(ctx context.Context, code instrument.Code) (Snapshot, error) {
	req, err := http.NewRequest(http.MethodGet, a.baseURL+sinaSymbol(code), nil)
	if err != nil {
		return Snapshot{}, permanent(a.Name(), "build request", err)
	}
	req.Header.Set("Referer", "https://finance.sina.com.cn")

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
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if q, ok := a.parseLine(line, code); ok {
			return q, nil
		}
	}
	return Snapshot{}, permanent(a.Name(), fmt.Sprintf("no quote in response for %s", code.Symbol), nil)
}

// parseLine handles sina's line protocol:
//
//	var hq_str_sh600000="name,open,preclose,price,high,low,...,volume,amount,...";
//
// HK lines (rt_hk prefix) carry a different field order.
func (a *SinaAdapter) parseLine(line string, code instrument.Code) (Snapshot, bool) {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) < 2 {
		return Snapshot{}, false
	}
	payload := strings.Trim(strings.Trim(parts[1], ";"), "\"")
	fields := strings.Split(payload, ",")

	if code.Market == instrument.MarketHK {
		return a.parseHKFields(fields, code)
	}
	if len(fields) < 10 {
		return Snapshot{}, false
	}
	name := fields[0]
	price := parseFloat(fields[3])
	preclose := parseFloat(fields[2])
	volume := parseFloat(fields[8])
	if price <= 0 {
		return Snapshot{}, false
	}
	changePct := 0.0
	if preclose > 0 {
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

func (a *SinaAdapter) parseHKFields(fields []string, code instrument.Code) (Snapshot, bool) {
	// rt_hk payload: english name, name, open, preclose, high, low, price, ...
	if len(fields) < 13 {
		return Snapshot{}, false
	}
	name := fields[1]
	preclose := parseFloat(fields[3])
	price := parseFloat(fields[6])
	volume := parseFloat(fields[12])
	if price <= 0 {
		return Snapshot{}, false
	}
	changePct := 0.0
	if preclose > 0 {
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
		Raw:       strings.Join(fields, ","),
	}, true
}

func sinaSymbol(code instrument.Code) string {
	if code.Market == instrument.MarketHK {
		return "rt_hk" + code.Symbol
	}
	return code.Exchange + code.Symbol
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
