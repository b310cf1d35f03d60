package exchange

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

const metaBody = `{"universe":[{"name":"BTC","szDecimals":5},{"name":"HYPE","szDecimals":2}]}`

// infoHandlers maps an /info request type to its canned JSON body.
type infoHandlers map[string]string

type testServer struct {
	*httptest.Server
	infoCalls []string
	exchange  func(t *testing.T, req exchangeRequest) string
}

func newTestServer(t *testing.T, info infoHandlers) *testServer {
	t.Helper()
	ts := &testServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/info":
			var req infoRequest
			if err := sonic.Unmarshal(body, &req); err != nil {
				t.Errorf("bad info body %s: %v", body, err)
			}
			ts.infoCalls = append(ts.infoCalls, req.Type)
			resp, ok := info[req.Type]
			if !ok {
				http.Error(w, "unexpected "+req.Type, http.StatusInternalServerError)
				return
			}
			_, _ = io.WriteString(w, resp)
		case "/exchange":
			var req exchangeRequest
			if err := sonic.Unmarshal(body, &req); err != nil {
				t.Errorf("bad exchange body %s: %v", body, err)
			}
			_, _ = io.WriteString(w, ts.exchange(t, req))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, url string, key string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:    url,
		Coin:       "HYPE",
		PrivateKey: key,
		Testnet:    true,
		VWAPWindow: 2,
		BookDepth:  2,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.now = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestFetchPrice(t *testing.T) {
	ts := newTestServer(t, infoHandlers{"allMids": `{"BTC":"65000.5","HYPE":"31.5"}`})
	c := newTestClient(t, ts.URL, "")

	px, err := c.FetchPrice(context.Background())
	if err != nil || px != 31.5 {
		t.Fatalf("price = %v, %v", px, err)
	}

	c.cfg.Coin = "DOGE"
	if _, err := c.FetchPrice(context.Background()); !errors.Is(err, ErrUnknownCoin) {
		t.Fatalf("err = %v, want ErrUnknownCoin", err)
	}
}

func TestFetchPrice_PrefersFreshFeed(t *testing.T) {
	ts := newTestServer(t, infoHandlers{"allMids": `{"HYPE":"31.5"}`})
	c := newTestClient(t, ts.URL, "")

	feed := NewMidsFeed("", nil)
	now := time.Now()
	feed.now = func() time.Time { return now }
	feed.set(map[string]string{"HYPE": "30.25"})
	c.UseFeed(feed)

	px, err := c.FetchPrice(context.Background())
	if err != nil || px != 30.25 || len(ts.infoCalls) != 0 {
		t.Fatalf("price = %v, %v, rest calls %v", px, err, ts.infoCalls)
	}

	now = now.Add(time.Minute)
	px, err = c.FetchPrice(context.Background())
	if err != nil || px != 31.5 || len(ts.infoCalls) != 1 {
		t.Fatalf("stale feed: price = %v, %v, rest calls %v", px, err, ts.infoCalls)
	}
}

func TestFetchCandles(t *testing.T) {
	ts := newTestServer(t, infoHandlers{"candleSnapshot": `[
		{"t":1710071940000,"T":1710071999999,"s":"HYPE","i":"1m","o":"31.0","c":"31.2","h":"31.3","l":"30.9","v":"120.5","n":40},
		{"t":1710071880000,"T":1710071939999,"s":"HYPE","i":"1m","o":"30.8","c":"31.0","h":"31.1","l":"30.7","v":"98","n":31},
		{"t":1710071820000,"T":1710071879999,"s":"HYPE","i":"1m","o":"30.5","c":"30.8","h":"30.9","l":"30.4","v":"75","n":22}
	]`})
	c := newTestClient(t, ts.URL, "")

	candles, err := c.FetchCandles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want window of 2", len(candles))
	}
	if !candles[0].Start.Before(candles[1].Start) {
		t.Fatalf("candles not oldest first: %+v", candles)
	}
	last := candles[1]
	if last.Start != time.UnixMilli(1710071940000).UTC() || last.Close != 31.2 || last.Volume != 120.5 || last.High != 31.3 {
		t.Fatalf("last candle = %+v", last)
	}
}

func TestFetchCandles_BadNumber(t *testing.T) {
	ts := newTestServer(t, infoHandlers{"candleSnapshot": `[{"t":1,"T":2,"o":"x","c":"1","h":"1","l":"1","v":"1"}]`})
	c := newTestClient(t, ts.URL, "")

	if _, err := c.FetchCandles(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFetchOrderBook(t *testing.T) {
	ts := newTestServer(t, infoHandlers{"l2Book": `{"coin":"HYPE","time":1710072000000,"levels":[
		[{"px":"31.0","sz":"10","n":1},{"px":"30.9","sz":"20","n":2},{"px":"30.8","sz":"30","n":3}],
		[{"px":"31.1","sz":"5","n":1}]
	]}`})
	c := newTestClient(t, ts.URL, "")

	book, err := c.FetchOrderBook(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(book.Bids) != 2 || len(book.Asks) != 1 {
		t.Fatalf("book depth bids=%d asks=%d", len(book.Bids), len(book.Asks))
	}
	if book.Bids[1].Price != 30.9 || book.Bids[1].Size != 20 || book.Asks[0].Size != 5 {
		t.Fatalf("book = %+v", book)
	}
}

func TestFetchOrderBook_MissingSide(t *testing.T) {
	ts := newTestServer(t, infoHandlers{"l2Book": `{"coin":"HYPE","time":0,"levels":[]}`})
	c := newTestClient(t, ts.URL, "")

	if _, err := c.FetchOrderBook(context.Background()); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestFetchFundingRate(t *testing.T) {
	ts := newTestServer(t, infoHandlers{
		"metaAndAssetCtxs": `[` + metaBody + `,[{"funding":"0.0001","midPx":"65000"},{"funding":"0.0000125","midPx":"31.5"}]]`,
	})
	c := newTestClient(t, ts.URL, "")

	rate, err := c.FetchFundingRate(context.Background())
	if err != nil || rate != 0.0000125 {
		t.Fatalf("funding = %v, %v", rate, err)
	}

	// metadata is cached from the funding call
	am, err := c.loadMeta(context.Background())
	if err != nil || am != (assetMeta{Index: 1, SzDecimals: 2}) {
		t.Fatalf("meta = %+v, %v", am, err)
	}
	if len(ts.infoCalls) != 1 {
		t.Fatalf("info calls = %v", ts.infoCalls)
	}
}

func TestHTTPErrorIsReturned(t *testing.T) {
	ts := newTestServer(t, infoHandlers{})
	c := newTestClient(t, ts.URL, "")

	_, err := c.FetchPrice(context.Background())
	if err == nil || !strings.Contains(err.Error(), "http 500") {
		t.Fatalf("err = %v", err)
	}
}

func TestMarketBuy(t *testing.T) {
	ts := newTestServer(t, infoHandlers{"meta": metaBody, "allMids": `{"HYPE":"31.5"}`})
	c := newTestClient(t, ts.URL, testKey)

	var got exchangeRequest
	ts.exchange = func(t *testing.T, req exchangeRequest) string {
		got = req
		return `{"status":"ok","response":{"type":"order","data":{"statuses":[{"filled":{"totalSz":"7.7","avgPx":"31.52","oid":77738308}}]}}}`
	}

	res, err := c.MarketBuy(context.Background(), 7.7)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "filled" || res.Size != 7.7 || res.AvgPrice != 31.52 || res.OrderID != 77738308 || res.Side != "buy" {
		t.Fatalf("result = %+v", res)
	}

	if len(got.Action.Orders) != 1 {
		t.Fatalf("action = %+v", got.Action)
	}
	o := got.Action.Orders[0]
	if o.Asset != 1 || !o.IsBuy || o.ReduceOnly || o.Size != "7.7" || o.LimitPx != "33.075" || o.OrderType.Limit.Tif != "Ioc" {
		t.Fatalf("order wire = %+v", o)
	}
	if !strings.HasPrefix(o.Cloid, "0x") || len(o.Cloid) != 34 || o.Cloid != res.ClientID {
		t.Fatalf("cloid = %q, result %q", o.Cloid, res.ClientID)
	}
	if got.Nonce != c.now().UnixMilli() || got.Action.Grouping != "na" {
		t.Fatalf("nonce/grouping = %d %q", got.Nonce, got.Action.Grouping)
	}

	// the signature must recover to the signer address
	digest, err := actionDigest(got.Action, got.Nonce, false)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := hex.DecodeString(strings.TrimPrefix(got.Signature.R, "0x"))
	s, _ := hex.DecodeString(strings.TrimPrefix(got.Signature.S, "0x"))
	sig := append(append(r, s...), byte(got.Signature.V-27))
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatal(err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != c.signer.Address() {
		t.Fatal("signature does not recover to signer address")
	}
}

func TestReduceOnlySell_Rejected(t *testing.T) {
	tests := []struct {
		name string
		resp string
	}{
		{name: "status error", resp: `{"status":"ok","response":{"type":"order","data":{"statuses":[{"error":"Order could not immediately match against any resting orders."}]}}}`},
		{name: "request error", resp: `{"status":"err","response":"User or API Wallet does not exist."}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, infoHandlers{"meta": metaBody, "allMids": `{"HYPE":"31.5"}`})
			c := newTestClient(t, ts.URL, testKey)
			ts.exchange = func(t *testing.T, req exchangeRequest) string {
				o := req.Action.Orders[0]
				if o.IsBuy || !o.ReduceOnly || o.LimitPx != "29.925" {
					t.Errorf("sell wire = %+v", o)
				}
				return tt.resp
			}

			if _, err := c.ReduceOnlySell(context.Background(), 2.5); !errors.Is(err, ErrOrderRejected) {
				t.Fatalf("err = %v, want ErrOrderRejected", err)
			}
		})
	}
}

func TestMarketBuy_NoSigner(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0", "")

	if _, err := c.MarketBuy(context.Background(), 1); !errors.Is(err, ErrNoSigner) {
		t.Fatalf("err = %v, want ErrNoSigner", err)
	}
}

func TestRoundPrice(t *testing.T) {
	tests := []struct {
		px         float64
		szDecimals int
		want       string
	}{
		{31.23456, 2, "31.235"},
		{123456.7, 5, "123460"},
		{0.000123456, 0, "0.000123"},
		{1.2345678, 0, "1.2346"},
		{65000.25, 5, "65000"},
		{0.25, 4, "0.25"},
	}
	for _, tt := range tests {
		if got := roundPrice(tt.px, tt.szDecimals).String(); got != tt.want {
			t.Errorf("roundPrice(%v, %d) = %s, want %s", tt.px, tt.szDecimals, got, tt.want)
		}
	}
}

func TestRoundSize(t *testing.T) {
	got, err := roundSize(23.8049, 2)
	if err != nil || got.String() != "23.8" {
		t.Fatalf("roundSize = %s, %v", got, err)
	}
	if _, err := roundSize(0.004, 2); err == nil {
		t.Fatal("expected error for size that rounds to zero")
	}
}

func TestDryRunExecutor(t *testing.T) {
	d := NewDryRunExecutor(nil)

	buy, err := d.MarketBuy(context.Background(), 7.7)
	if err != nil || buy.Status != "dry_run" || buy.Side != "buy" || buy.Size != 7.7 || !buy.Simulated {
		t.Fatalf("buy = %+v, %v", buy, err)
	}
	sell, err := d.ReduceOnlySell(context.Background(), 2.5)
	if err != nil || sell.Side != "sell" || sell.Size != 2.5 {
		t.Fatalf("sell = %+v, %v", sell, err)
	}
}

func TestWarmup(t *testing.T) {
	ts := newTestServer(t, infoHandlers{"meta": metaBody})
	c := newTestClient(t, ts.URL, "")

	if err := c.Warmup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Warmup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ts.infoCalls) != 1 {
		t.Fatalf("meta fetched %d times, want cached after first", len(ts.infoCalls))
	}

	c.cfg.Coin = "DOGE"
	c.meta = nil
	if err := c.Warmup(context.Background()); !errors.Is(err, ErrUnknownCoin) {
		t.Fatalf("err = %v, want ErrUnknownCoin", err)
	}
}
