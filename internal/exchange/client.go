package exchange

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	MainnetURL = "https://api.hyperliquid.xyz"
	TestnetURL = "https://api.hyperliquid-testnet.xyz"

	defaultSlippage  = 0.05
	defaultMidMaxAge = 10 * time.Second
	defaultTimeout   = 10 * time.Second
)

var (
	ErrUnknownCoin   = errors.New("coin not listed")
	ErrEmptyResponse = errors.New("empty response")
	ErrNoSigner      = errors.New("no private key configured")
	ErrOrderRejected = errors.New("order rejected")
)

type Config struct {
	BaseURL    string
	Coin       string
	PrivateKey string
	Testnet    bool

	// Slippage is the fraction away from mid used to price aggressive IOC orders.
	Slippage   float64
	VWAPWindow int
	BookDepth  int
	MidMaxAge  time.Duration
	Timeout    time.Duration
}

// Client talks to the Hyperliquid perpetuals REST API for a single coin.
type Client struct {
	cfg    Config
	http   *http.Client
	log    *zap.Logger
	signer *Signer
	feed   *MidsFeed
	now    func() time.Time

	mu   sync.Mutex
	meta *assetMeta
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MainnetURL
		if cfg.Testnet {
			cfg.BaseURL = TestnetURL
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Slippage <= 0 {
		cfg.Slippage = defaultSlippage
	}
	if cfg.MidMaxAge <= 0 {
		cfg.MidMaxAge = defaultMidMaxAge
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.Named("hyperliquid"),
		now:  time.Now,
	}

	if cfg.PrivateKey != "" {
		s, err := NewSigner(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		c.signer = s
		c.log.Info("signer ready", zap.String("address", s.Address().Hex()))
	}
	return c, nil
}

// UseFeed makes FetchPrice prefer fresh websocket mids over REST.
func (c *Client) UseFeed(f *MidsFeed) { c.feed = f }

func (c *Client) Coin() string { return c.cfg.Coin }

func (c *Client) BaseURL() string { return c.cfg.BaseURL }

func (c *Client) Mainnet() bool { return !c.cfg.Testnet }

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := sonic.Marshal(body)
	if err != nil {
		return errors.Wrapf(err, "encode %s request", path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return errors.Wrapf(err, "build %s request", path)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "post %s", path)
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s response", path)
	}
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("post %s: http %d: %s", path, resp.StatusCode, string(rb))
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(rb, out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}

func (c *Client) info(ctx context.Context, req infoRequest, out any) error {
	return c.post(ctx, "/info", req, out)
}
