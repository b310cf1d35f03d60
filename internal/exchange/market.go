package exchange

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dip_bot/internal/models"
)

const candleInterval = "1m"

type infoRequest struct {
	Type string         `json:"type"`
	Coin string         `json:"coin,omitempty"`
	Req  *candleRequest `json:"req,omitempty"`
}

type candleRequest struct {
	Coin      string `json:"coin"`
	Interval  string `json:"interval"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

// "t" and "T" differ only in case, both must be declared.
type wireCandle struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
}

type wireLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

type wireBook struct {
	Coin   string        `json:"coin"`
	Time   int64         `json:"time"`
	Levels [][]wireLevel `json:"levels"`
}

type wireAsset struct {
	Name       string `json:"name"`
	SzDecimals int    `json:"szDecimals"`
}

type wireMeta struct {
	Universe []wireAsset `json:"universe"`
}

type wireAssetCtx struct {
	Funding string `json:"funding"`
	MidPx   string `json:"midPx"`
	MarkPx  string `json:"markPx"`
}

// assetMeta identifies the coin on the order endpoint.
type assetMeta struct {
	Index      int
	SzDecimals int
}

// FetchPrice returns the current mid price, from the websocket feed when it is fresh.
func (c *Client) FetchPrice(ctx context.Context) (float64, error) {
	if c.feed != nil {
		if px, ok := c.feed.Mid(c.cfg.Coin, c.cfg.MidMaxAge); ok {
			return px, nil
		}
	}

	var mids map[string]string
	if err := c.info(ctx, infoRequest{Type: "allMids"}, &mids); err != nil {
		return 0, err
	}
	raw, ok := mids[c.cfg.Coin]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownCoin, "allMids %s", c.cfg.Coin)
	}
	px, err := parsePositive(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "mid %s", c.cfg.Coin)
	}
	return px, nil
}

// FetchCandles returns the last VWAPWindow one-minute bars, oldest first.
func (c *Client) FetchCandles(ctx context.Context) ([]models.Candle, error) {
	window := c.cfg.VWAPWindow
	if window <= 0 {
		window = 1440
	}
	end := c.now().UTC()
	start := end.Add(-time.Duration(window) * time.Minute)

	var raw []wireCandle
	err := c.info(ctx, infoRequest{
		Type: "candleSnapshot",
		Req: &candleRequest{
			Coin:      c.cfg.Coin,
			Interval:  candleInterval,
			StartTime: start.UnixMilli(),
			EndTime:   end.UnixMilli(),
		},
	}, &raw)
	if err != nil {
		return nil, err
	}

	out := make([]models.Candle, 0, len(raw))
	for _, w := range raw {
		cd, err := w.candle()
		if err != nil {
			return nil, errors.Wrapf(err, "candle at %d", w.OpenTime)
		}
		out = append(out, cd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if len(out) > window {
		out = out[len(out)-window:]
	}
	return out, nil
}

func (w wireCandle) candle() (models.Candle, error) {
	var (
		cd  = models.Candle{Start: time.UnixMilli(w.OpenTime).UTC()}
		err error
	)
	fields := []struct {
		raw string
		dst *float64
	}{
		{w.Open, &cd.Open}, {w.High, &cd.High}, {w.Low, &cd.Low}, {w.Close, &cd.Close}, {w.Volume, &cd.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(f.raw, 64); err != nil {
			return models.Candle{}, err
		}
	}
	return cd, nil
}

// FetchOrderBook returns up to BookDepth levels per side, best first.
func (c *Client) FetchOrderBook(ctx context.Context) (models.OrderBook, error) {
	var raw wireBook
	if err := c.info(ctx, infoRequest{Type: "l2Book", Coin: c.cfg.Coin}, &raw); err != nil {
		return models.OrderBook{}, err
	}
	if len(raw.Levels) != 2 {
		return models.OrderBook{}, errors.Wrapf(ErrEmptyResponse, "l2Book %s: %d sides", c.cfg.Coin, len(raw.Levels))
	}

	bids, err := c.levels(raw.Levels[0])
	if err != nil {
		return models.OrderBook{}, errors.Wrap(err, "bids")
	}
	asks, err := c.levels(raw.Levels[1])
	if err != nil {
		return models.OrderBook{}, errors.Wrap(err, "asks")
	}
	return models.OrderBook{Bids: bids, Asks: asks, Time: time.UnixMilli(raw.Time).UTC()}, nil
}

func (c *Client) levels(in []wireLevel) ([]models.BookLevel, error) {
	if c.cfg.BookDepth > 0 && len(in) > c.cfg.BookDepth {
		in = in[:c.cfg.BookDepth]
	}
	out := make([]models.BookLevel, 0, len(in))
	for _, l := range in {
		px, err := strconv.ParseFloat(l.Px, 64)
		if err != nil {
			return nil, err
		}
		sz, err := strconv.ParseFloat(l.Sz, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, models.BookLevel{Price: px, Size: sz})
	}
	return out, nil
}

// FetchFundingRate returns the current hourly funding rate and refreshes the asset metadata.
func (c *Client) FetchFundingRate(ctx context.Context) (float64, error) {
	meta, ctxs, err := c.metaAndAssetCtxs(ctx)
	if err != nil {
		return 0, err
	}

	am, err := findAsset(meta, c.cfg.Coin)
	if err != nil {
		return 0, err
	}
	c.setMeta(am)

	if am.Index >= len(ctxs) {
		return 0, errors.Wrapf(ErrEmptyResponse, "asset ctx %s", c.cfg.Coin)
	}
	rate, err := strconv.ParseFloat(ctxs[am.Index].Funding, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "funding %s", c.cfg.Coin)
	}
	return rate, nil
}

func (c *Client) metaAndAssetCtxs(ctx context.Context) (wireMeta, []wireAssetCtx, error) {
	var parts []json.RawMessage
	if err := c.info(ctx, infoRequest{Type: "metaAndAssetCtxs"}, &parts); err != nil {
		return wireMeta{}, nil, err
	}
	if len(parts) != 2 {
		return wireMeta{}, nil, errors.Wrapf(ErrEmptyResponse, "metaAndAssetCtxs: %d parts", len(parts))
	}

	var (
		meta wireMeta
		ctxs []wireAssetCtx
	)
	if err := sonic.Unmarshal(parts[0], &meta); err != nil {
		return wireMeta{}, nil, errors.Wrap(err, "decode meta")
	}
	if err := sonic.Unmarshal(parts[1], &ctxs); err != nil {
		return wireMeta{}, nil, errors.Wrap(err, "decode asset ctxs")
	}
	return meta, ctxs, nil
}

// loadMeta returns the cached asset metadata, loading it on first use.
func (c *Client) loadMeta(ctx context.Context) (assetMeta, error) {
	c.mu.Lock()
	m := c.meta
	c.mu.Unlock()
	if m != nil {
		return *m, nil
	}

	var meta wireMeta
	if err := c.info(ctx, infoRequest{Type: "meta"}, &meta); err != nil {
		return assetMeta{}, err
	}
	am, err := findAsset(meta, c.cfg.Coin)
	if err != nil {
		return assetMeta{}, err
	}
	c.setMeta(am)
	return am, nil
}

func (c *Client) setMeta(am assetMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.meta == nil || *c.meta != am {
		c.log.Debug("asset meta", zap.String("coin", c.cfg.Coin), zap.Int("index", am.Index), zap.Int("sz_decimals", am.SzDecimals))
	}
	c.meta = &am
}

func findAsset(meta wireMeta, coin string) (assetMeta, error) {
	for i, a := range meta.Universe {
		if a.Name == coin {
			return assetMeta{Index: i, SzDecimals: a.SzDecimals}, nil
		}
	}
	return assetMeta{}, errors.Wrapf(ErrUnknownCoin, "meta %s", coin)
}

func parsePositive(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, errors.Errorf("non-positive value %q", s)
	}
	return v, nil
}

// Warmup resolves the coin's asset index and size precision so a delisted or
// misspelled coin fails at startup rather than on the first order.
func (c *Client) Warmup(ctx context.Context) error {
	am, err := c.loadMeta(ctx)
	if err != nil {
		return errors.Wrapf(err, "warmup %s", c.cfg.Coin)
	}
	c.log.Info("asset resolved",
		zap.String("coin", c.cfg.Coin),
		zap.Int("asset", am.Index),
		zap.Int("sz_decimals", am.SzDecimals),
	)
	return nil
}
