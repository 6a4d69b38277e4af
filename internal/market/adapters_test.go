package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stock-ai-analyzer/internal/httpx"
	"stock-ai-analyzer/internal/instrument"
)

func TestEastmoney_Fetch(t *testing.T) {
	var gotSecID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecID = r.URL.Query().Get("secid")
		w.Write([]byte(`{"data":{"f58":"浦发银行","f57":"600000","f43":10.5,"f170":1.2,"f47":123456}}`))
	}))
	defer srv.Close()

	a := NewEastmoneyAdapter(httpx.New(time.Second), 1, time.Second)
	a.baseURL = srv.URL

	snap, err := a.Fetch(context.Background(), aShareCode())
	require.NoError(t, err)
	require.Equal(t, "1.600000", gotSecID)
	require.Equal(t, "600000", snap.Symbol)
	require.Equal(t, "浦发银行", snap.Name)
	require.Equal(t, 10.5, snap.Price)
	require.Equal(t, 1.2, snap.ChangePct)
	require.Equal(t, "eastmoney", snap.Source)
	require.Equal(t, instrument.MarketAShare, snap.Market)
}

func TestEastmoney_ErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"throttled", http.StatusTooManyRequests, "", KindRateLimited},
		{"server error", http.StatusBadGateway, "", KindTransient},
		{"not found", http.StatusNotFound, "", KindPermanent},
		{"empty data", http.StatusOK, `{"data":null}`, KindPermanent},
		{"malformed payload", http.StatusOK, `{]`, KindPermanent},
		{"zero price", http.StatusOK, `{"data":{"f43":0}}`, KindPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			a := NewEastmoneyAdapter(httpx.New(time.Second), 1, time.Second)
			a.baseURL = srv.URL

			_, err := a.Fetch(context.Background(), aShareCode())
			require.Error(t, err)
			var se *SourceError
			require.True(t, errors.As(err, &se))
			require.Equal(t, tc.kind, se.Kind)
		})
	}
}

func TestEastmoney_TimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	a := NewEastmoneyAdapter(httpx.New(time.Second), 1, time.Second)
	a.baseURL = srv.URL

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.Fetch(ctx, aShareCode())
	require.Error(t, err)
	var se *SourceError
	require.True(t, errors.As(err, &se))
	require.Equal(t, KindTransient, se.Kind)
}

func TestSina_ParseAShareLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`var hq_str_sh600000="浦发银行,10.40,10.37,10.50,10.60,10.30,10.49,10.50,4000000,42000000.00,x";` + "\n"))
	}))
	defer srv.Close()

	a := NewSinaAdapter(httpx.New(time.Second), 2, time.Second)
	a.baseURL = srv.URL + "/list="

	snap, err := a.Fetch(context.Background(), aShareCode())
	require.NoError(t, err)
	require.Equal(t, "浦发银行", snap.Name)
	require.Equal(t, 10.5, snap.Price)
	require.Equal(t, float64(4000000), snap.Volume)
	require.InDelta(t, (10.50-10.37)/10.37*100, snap.ChangePct, 1e-9)
}

func TestSina_ParseHKLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`var hq_str_rt_hk00700="TENCENT,腾讯控股,320.0,318.0,325.0,315.0,321.6,3.6,1.132,321.4,321.8,5000000000,15500000,0.0,0.0,2024/05/20,16:08";`))
	}))
	defer srv.Close()

	a := NewSinaAdapter(httpx.New(time.Second), 2, time.Second)
	a.baseURL = srv.URL + "/list="

	code := instrument.Code{Raw: "00700", Symbol: "00700", Market: instrument.MarketHK, Exchange: "hk"}
	snap, err := a.Fetch(context.Background(), code)
	require.NoError(t, err)
	require.Equal(t, "腾讯控股", snap.Name)
	require.Equal(t, 321.6, snap.Price)
	require.InDelta(t, (321.6-318.0)/318.0*100, snap.ChangePct, 1e-9)
}

func TestTencent_ParseLine(t *testing.T) {
	a := NewTencentAdapter(httpx.New(time.Second), 3, time.Second)

	line := `v_sh600000="1~浦发银行~600000~10.50~10.37~10.40~400000~200000~200000~10.49~28~10.48~12~10.47~5~10.46~3~10.45~1~10.51~9~10.52~4~10.53~2~10.54~7~10.55~6~~20240520160800~0.13~1.25~10.60~10.30~10.50/400000/420000000~400000~42000~0.14~6.9~~10.60~10.30~2.89~3081~3083~1.2~11.41~9.33";`
	snap, ok := a.parseLine(line, aShareCode())
	require.True(t, ok)
	require.Equal(t, "浦发银行", snap.Name)
	require.Equal(t, 10.5, snap.Price)
	require.Equal(t, 1.25, snap.ChangePct)

	_, ok = a.parseLine(`v_pv_none="1"`, aShareCode())
	require.False(t, ok)
}

func TestTencent_ShortLineComputesChange(t *testing.T) {
	a := NewTencentAdapter(nil, 3, time.Second)
	line := `v_sh600000="1~浦发银行~600000~10.50~10.00~10.40~400000";`
	snap, ok := a.parseLine(line, aShareCode())
	require.True(t, ok)
	require.InDelta(t, 5.0, snap.ChangePct, 1e-9)
}
