package instrument

import (
	"fmt"
	"strings"
)

type Market string

const (
	MarketAShare Market = "a_share"
	MarketHK     Market = "hk"
	MarketIndex  Market = "index"
	MarketFund   Market = "fund"
)

func (m Market) String() string { return string(m) }

// Code is a resolved instrument: bare numeric symbol plus market classification.
// Exchange is "sh", "sz" or "hk" and is what adapters use to build provider ids.
type Code struct {
	Raw      string `json:"raw"`
	Symbol   string `json:"symbol"`
	Market   Market `json:"market"`
	Exchange string `json:"exchange"`
}

type ResolutionError struct {
	Input  string
	Reason string
}

const ReasonUnrecognized = "unrecognized_code"

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %s", e.Input, e.Reason)
}

// Tables holds the prefix/code mappings that drive classification.
// They are configuration data, not hard-coded logic: the exact ranges shift
// as exchanges allocate new code blocks.
type Tables struct {
	IndexCodes     []string `yaml:"index_codes"`
	IndexPrefixes  []string `yaml:"index_prefixes"`
	FundPrefixes   []string `yaml:"fund_prefixes"`
	ASharePrefixes []string `yaml:"a_share_prefixes"`
}

func DefaultTables() Tables {
	return Tables{
		IndexCodes:     []string{"000001", "000016", "000300", "000688", "000905", "399001", "399006"},
		IndexPrefixes:  []string{"399"},
		FundPrefixes:   []string{"50", "51", "56", "58", "15", "16"},
		ASharePrefixes: []string{"60", "68", "00", "30"},
	}
}

type Resolver struct {
	indexCodes     map[string]bool
	indexPrefixes  []string
	fundPrefixes   []string
	aSharePrefixes []string
}

func NewResolver(t Tables) *Resolver {
	idx := make(map[string]bool, len(t.IndexCodes))
	for _, c := range t.IndexCodes {
		idx[c] = true
	}
	return &Resolver{
		indexCodes:     idx,
		indexPrefixes:  t.IndexPrefixes,
		fundPrefixes:   t.FundPrefixes,
		aSharePrefixes: t.ASharePrefixes,
	}
}

// Resolve classifies a user-entered code into a market plus normalized symbol.
// It is total over non-empty input: every string either classifies or returns
// a *ResolutionError, deterministically.
func (r *Resolver) Resolve(raw string) (Code, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return Code{}, &ResolutionError{Input: raw, Reason: ReasonUnrecognized}
	}

	exchange := ""
	for _, p := range []string{"sh", "sz", "hk"} {
		if strings.HasPrefix(s, p) {
			exchange = p
			s = s[len(p):]
			break
		}
	}
	if !isDigits(s) {
		return Code{}, &ResolutionError{Input: raw, Reason: ReasonUnrecognized}
	}

	switch len(s) {
	case 6:
		return r.resolveSixDigit(raw, s, exchange)
	case 5:
		if exchange != "" && exchange != "hk" {
			return Code{}, &ResolutionError{Input: raw, Reason: ReasonUnrecognized}
		}
		return Code{Raw: raw, Symbol: s, Market: MarketHK, Exchange: "hk"}, nil
	default:
		return Code{}, &ResolutionError{Input: raw, Reason: ReasonUnrecognized}
	}
}

func (r *Resolver) resolveSixDigit(raw, s, exchange string) (Code, error) {
	if exchange == "hk" {
		return Code{}, &ResolutionError{Input: raw, Reason: ReasonUnrecognized}
	}

	// 000001 is both the Shanghai composite and Ping An Bank; only the explicit
	// sh prefix selects the index reading.
	if r.indexCodes[s] && (s != "000001" || exchange == "sh") {
		ex := exchange
		if ex == "" {
			ex = indexExchange(s)
		}
		return Code{Raw: raw, Symbol: s, Market: MarketIndex, Exchange: ex}, nil
	}
	if p := matchPrefix(s, r.fundPrefixes); p != "" {
		ex := exchange
		if ex == "" {
			ex = fundExchange(p)
		}
		return Code{Raw: raw, Symbol: s, Market: MarketFund, Exchange: ex}, nil
	}
	if matchPrefix(s, r.indexPrefixes) != "" {
		return Code{Raw: raw, Symbol: s, Market: MarketIndex, Exchange: "sz"}, nil
	}
	if p := matchPrefix(s, r.aSharePrefixes); p != "" {
		ex := exchange
		if ex == "" {
			if p == "60" || p == "68" {
				ex = "sh"
			} else {
				ex = "sz"
			}
		}
		return Code{Raw: raw, Symbol: s, Market: MarketAShare, Exchange: ex}, nil
	}
	return Code{}, &ResolutionError{Input: raw, Reason: ReasonUnrecognized}
}

func matchPrefix(s string, prefixes []string) string {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return p
		}
	}
	return ""
}

func indexExchange(code string) string {
	if strings.HasPrefix(code, "399") {
		return "sz"
	}
	return "sh"
}

func fundExchange(prefix string) string {
	switch prefix {
	case "15", "16":
		return "sz"
	default:
		return "sh"
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
