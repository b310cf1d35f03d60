package exchange

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dip_bot/internal/models"
)

const (
	pricePrecision  = 5 // significant figures
	perpMaxDecimals = 6
)

// Field order matters: the msgpack encoding is hashed for the signature.
type orderWire struct {
	Asset      int           `json:"a" msgpack:"a"`
	IsBuy      bool          `json:"b" msgpack:"b"`
	LimitPx    string        `json:"p" msgpack:"p"`
	Size       string        `json:"s" msgpack:"s"`
	ReduceOnly bool          `json:"r" msgpack:"r"`
	OrderType  orderTypeWire `json:"t" msgpack:"t"`
	Cloid      string        `json:"c,omitempty" msgpack:"c,omitempty"`
}

type orderTypeWire struct {
	Limit limitWire `json:"limit" msgpack:"limit"`
}

type limitWire struct {
	Tif string `json:"tif" msgpack:"tif"`
}

type orderAction struct {
	Type     string      `json:"type" msgpack:"type"`
	Orders   []orderWire `json:"orders" msgpack:"orders"`
	Grouping string      `json:"grouping" msgpack:"grouping"`
}

type exchangeRequest struct {
	Action    orderAction `json:"action"`
	Nonce     int64       `json:"nonce"`
	Signature Signature   `json:"signature"`
}

type exchangeResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type orderResponse struct {
	Type string `json:"type"`
	Data struct {
		Statuses []orderStatus `json:"statuses"`
	} `json:"data"`
}

type orderStatus struct {
	Filled *struct {
		TotalSz string `json:"totalSz"`
		AvgPx   string `json:"avgPx"`
		Oid     int64  `json:"oid"`
	} `json:"filled"`
	Resting *struct {
		Oid int64 `json:"oid"`
	} `json:"resting"`
	Error string `json:"error"`
}

// MarketBuy sends an aggressive IOC buy priced above mid.
func (c *Client) MarketBuy(ctx context.Context, size float64) (models.OrderResult, error) {
	return c.marketOrder(ctx, true, size)
}

// ReduceOnlySell sends an aggressive reduce-only IOC sell priced below mid.
func (c *Client) ReduceOnlySell(ctx context.Context, size float64) (models.OrderResult, error) {
	return c.marketOrder(ctx, false, size)
}

func (c *Client) marketOrder(ctx context.Context, isBuy bool, size float64) (models.OrderResult, error) {
	side := sideName(isBuy)
	if c.signer == nil {
		return models.OrderResult{}, ErrNoSigner
	}

	meta, err := c.loadMeta(ctx)
	if err != nil {
		return models.OrderResult{}, err
	}
	mid, err := c.FetchPrice(ctx)
	if err != nil {
		return models.OrderResult{}, errors.Wrap(err, "mid for order")
	}

	sz, err := roundSize(size, meta.SzDecimals)
	if err != nil {
		return models.OrderResult{}, err
	}
	px := slippagePrice(mid, isBuy, c.cfg.Slippage, meta.SzDecimals)
	cloid := newCloid()

	action := orderAction{
		Type: "order",
		Orders: []orderWire{{
			Asset:      meta.Index,
			IsBuy:      isBuy,
			LimitPx:    px.String(),
			Size:       sz.String(),
			ReduceOnly: !isBuy,
			OrderType:  orderTypeWire{Limit: limitWire{Tif: "Ioc"}},
			Cloid:      cloid,
		}},
		Grouping: "na",
	}

	nonce := c.now().UnixMilli()
	sig, err := c.signer.SignAction(action, nonce, c.Mainnet())
	if err != nil {
		return models.OrderResult{}, err
	}

	c.log.Info("placing order",
		zap.String("side", side),
		zap.String("size", sz.String()),
		zap.String("limit_px", px.String()),
		zap.String("cloid", cloid),
	)

	var resp exchangeResponse
	if err := c.post(ctx, "/exchange", exchangeRequest{Action: action, Nonce: nonce, Signature: sig}, &resp); err != nil {
		return models.OrderResult{}, err
	}

	res, err := parseOrderResponse(resp)
	if err != nil {
		return models.OrderResult{}, errors.Wrapf(err, "%s %s %s", side, sz.String(), c.cfg.Coin)
	}
	res.ClientID = cloid
	res.Side = side
	return res, nil
}

func parseOrderResponse(resp exchangeResponse) (models.OrderResult, error) {
	if resp.Status != "ok" {
		var msg string
		if err := sonic.Unmarshal(resp.Response, &msg); err != nil {
			msg = string(resp.Response)
		}
		return models.OrderResult{}, errors.Wrap(ErrOrderRejected, msg)
	}

	var body orderResponse
	if err := sonic.Unmarshal(resp.Response, &body); err != nil {
		return models.OrderResult{}, errors.Wrap(err, "decode order response")
	}
	if len(body.Data.Statuses) == 0 {
		return models.OrderResult{}, errors.Wrap(ErrEmptyResponse, "order statuses")
	}

	st := body.Data.Statuses[0]
	switch {
	case st.Error != "":
		return models.OrderResult{}, errors.Wrap(ErrOrderRejected, st.Error)
	case st.Filled != nil:
		filled, err := strconv.ParseFloat(st.Filled.TotalSz, 64)
		if err != nil {
			return models.OrderResult{}, errors.Wrap(err, "filled size")
		}
		avg, err := strconv.ParseFloat(st.Filled.AvgPx, 64)
		if err != nil {
			return models.OrderResult{}, errors.Wrap(err, "avg price")
		}
		return models.OrderResult{OrderID: st.Filled.Oid, Status: "filled", Size: filled, AvgPrice: avg}, nil
	case st.Resting != nil:
		return models.OrderResult{OrderID: st.Resting.Oid, Status: "resting"}, nil
	default:
		return models.OrderResult{}, errors.Wrap(ErrEmptyResponse, "order status")
	}
}

// roundPrice keeps five significant figures and at most 6-szDecimals decimals.
func roundPrice(px float64, szDecimals int) decimal.Decimal {
	d := decimal.NewFromFloat(px)
	if px <= 0 {
		return d
	}
	intDigits := int32(math.Floor(math.Log10(px))) + 1
	d = d.Round(pricePrecision - intDigits)

	maxDecimals := int32(perpMaxDecimals - szDecimals)
	if maxDecimals < 0 {
		maxDecimals = 0
	}
	return d.Round(maxDecimals)
}

func roundSize(size float64, szDecimals int) (decimal.Decimal, error) {
	d := decimal.NewFromFloat(size).Round(int32(szDecimals))
	if !d.IsPositive() {
		return decimal.Zero, errors.Errorf("size %v rounds to %s at %d decimals", size, d.String(), szDecimals)
	}
	return d, nil
}

func slippagePrice(mid float64, isBuy bool, slippage float64, szDecimals int) decimal.Decimal {
	if isBuy {
		return roundPrice(mid*(1+slippage), szDecimals)
	}
	return roundPrice(mid*(1-slippage), szDecimals)
}

// newCloid renders a random uuid as a 128-bit hex client order id.
func newCloid() string {
	id := uuid.New()
	return "0x" + hex.EncodeToString(id[:])
}

func sideName(isBuy bool) string {
	if isBuy {
		return "buy"
	}
	return "sell"
}
