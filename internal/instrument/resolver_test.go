package instrument

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_Classification(t *testing.T) {
	r := NewResolver(DefaultTables())

	cases := []struct {
		name     string
		in       string
		market   Market
		symbol   string
		exchange string
	}{
		{"shanghai a-share", "600000", MarketAShare, "600000", "sh"},
		{"star market", "688981", MarketAShare, "688981", "sh"},
		{"shenzhen a-share", "000002", MarketAShare, "000002", "sz"},
		{"chinext", "300750", MarketAShare, "300750", "sz"},
		{"pingan without prefix is a-share", "000001", MarketAShare, "000001", "sz"},
		{"shanghai composite with prefix", "sh000001", MarketIndex, "000001", "sh"},
		{"shenzhen component", "399001", MarketIndex, "399001", "sz"},
		{"csi 300", "000300", MarketIndex, "000300", "sh"},
		{"star 50", "000688", MarketIndex, "000688", "sh"},
		{"sse etf", "510300", MarketFund, "510300", "sh"},
		{"szse etf", "159915", MarketFund, "159915", "sz"},
		{"lof fund", "161725", MarketFund, "161725", "sz"},
		{"hk five digit", "00700", MarketHK, "00700", "hk"},
		{"hk with prefix", "hk09988", MarketHK, "09988", "hk"},
		{"whitespace trimmed", "  600519 ", MarketAShare, "600519", "sh"},
		{"uppercase exchange prefix", "SH600036", MarketAShare, "600036", "sh"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, err := r.Resolve(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.market, code.Market)
			require.Equal(t, tc.symbol, code.Symbol)
			require.Equal(t, tc.exchange, code.Exchange)
			require.Equal(t, tc.in, code.Raw)
		})
	}
}

func TestResolve_Unrecognized(t *testing.T) {
	r := NewResolver(DefaultTables())

	for _, in := range []string{
		"",
		"   ",
		"abc",
		"6000001", // seven digits
		"600 000",
		"AAPL",
		"测试",
		"400001", // no known six-digit prefix
		"hk600000",
		"sz00700",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := r.Resolve(in)
			require.Error(t, err)
			var resErr *ResolutionError
			require.True(t, errors.As(err, &resErr))
			require.Equal(t, ReasonUnrecognized, resErr.Reason)
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	r := NewResolver(DefaultTables())
	first, err := r.Resolve("600000")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := r.Resolve("600000")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestResolve_CustomTables(t *testing.T) {
	r := NewResolver(Tables{
		ASharePrefixes: []string{"60"},
	})
	_, err := r.Resolve("000002")
	require.Error(t, err)
	code, err := r.Resolve("600000")
	require.NoError(t, err)
	require.Equal(t, MarketAShare, code.Market)
}
