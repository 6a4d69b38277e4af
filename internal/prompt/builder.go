package prompt

import (
	"fmt"
	"strings"
	"time"

	"stock-ai-analyzer/internal/instrument"
	"stock-ai-analyzer/internal/market"
)

type Kind string

const (
	KindMarket Kind = "MARKET"
	KindStock  Kind = "STOCK"
)

func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(KindMarket):
		return KindMarket, nil
	case string(KindStock):
		return KindStock, nil
	}
	return "", fmt.Errorf("unknown analysis kind: %q", s)
}

// Context is the assembled prompt payload for one completion call.
type Context struct {
	System string
	User   string
}

const marketSystem = `你是一位专业的A股市场分析师，擅长从大盘指数和市场整体数据中解读趋势。
基于给出的行情快照撰写简短的市场分析：
- 当前市场位置与短期趋势判断
- 量能与情绪解读
- 需要关注的风险点
用中文撰写，300字以内，基于给出的数据，不得编造数据。`

const stockSystem = `你是一位专业的证券分析师，擅长个股的技术面与基本面解读。
基于给出的行情快照撰写简短的个股分析：
- 当前价格位置与短期走势判断
- 量价关系解读
- 主要风险提示
用中文撰写，300字以内，基于给出的数据，不得编造数据。`

const fundSystem = `你是一位专业的ETF产品分析师，专精于ETF基金的结构和策略分析。
基于给出的行情快照撰写简短的产品分析：
- 当前净值位置与短期走势判断
- 跟踪标的与配置价值
- 跟踪误差与流动性等风险提示
用中文撰写，300字以内，基于给出的数据，不得编造数据。`

// Build renders a snapshot into a prompt context. Pure transformation: both
// kinds share the snapshot block and differ only in framing.
func Build(snap market.Snapshot, kind Kind) (Context, error) {
	block := renderSnapshot(snap)
	switch kind {
	case KindMarket:
		return Context{
			System: marketSystem,
			User:   fmt.Sprintf("请分析以下市场行情：\n\n%s", block),
		}, nil
	case KindStock:
		system := stockSystem
		if snap.Market == instrument.MarketFund {
			system = fundSystem
		}
		return Context{
			System: system,
			User:   fmt.Sprintf("请分析以下标的行情：\n\n%s", block),
		}, nil
	}
	return Context{}, fmt.Errorf("unknown analysis kind: %q", kind)
}

// renderSnapshot emits the fixed-order numeric block shared by all templates.
func renderSnapshot(snap market.Snapshot) string {
	var b strings.Builder
	name := snap.Name
	if name == "" {
		name = snap.Symbol
	}
	fmt.Fprintf(&b, "标的: %s (%s)\n", name, snap.Symbol)
	fmt.Fprintf(&b, "市场: %s\n", marketLabel(snap.Market))
	fmt.Fprintf(&b, "最新价: %.2f%s\n", snap.Price, currencySymbol(snap.Market))
	fmt.Fprintf(&b, "涨跌幅: %+.2f%%\n", snap.ChangePct)
	fmt.Fprintf(&b, "成交量: %.0f\n", snap.Volume)
	fmt.Fprintf(&b, "数据源: %s\n", snap.Source)
	fmt.Fprintf(&b, "时间: %s", time.Unix(snap.TS, 0).Format("2006-01-02 15:04:05"))
	return b.String()
}

func marketLabel(m instrument.Market) string {
	switch m {
	case instrument.MarketAShare:
		return "A股"
	case instrument.MarketHK:
		return "港股"
	case instrument.MarketIndex:
		return "指数"
	case instrument.MarketFund:
		return "ETF/基金"
	}
	return string(m)
}

func currencySymbol(m instrument.Market) string {
	if m == instrument.MarketHK {
		return "HK$"
	}
	return "元"
}
