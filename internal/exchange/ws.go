package exchange

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	MainnetWSURL = "wss://api.hyperliquid.xyz/ws"
	TestnetWSURL = "wss://api.hyperliquid-testnet.xyz/ws"

	// the server drops connections idle for a minute
	wsPingEvery      = 30 * time.Second
	wsReconnectDelay = time.Second
)

type midQuote struct {
	px float64
	at time.Time
}

// MidsFeed keeps the latest allMids snapshot from the websocket stream.
type MidsFeed struct {
	url    string
	dialer *websocket.Dialer
	log    *zap.Logger
	now    func() time.Time

	mu   sync.RWMutex
	mids map[string]midQuote
}

func NewMidsFeed(url string, log *zap.Logger) *MidsFeed {
	if log == nil {
		log = zap.NewNop()
	}
	return &MidsFeed{
		url:    url,
		dialer: websocket.DefaultDialer,
		log:    log.Named("mids_feed"),
		now:    time.Now,
		mids:   make(map[string]midQuote),
	}
}

// WSURL maps a REST base URL to its websocket endpoint.
func WSURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/ws"
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/ws"
	}
	return MainnetWSURL
}

// Mid returns the last mid for coin if it is younger than maxAge.
func (f *MidsFeed) Mid(coin string, maxAge time.Duration) (float64, bool) {
	f.mu.RLock()
	q, ok := f.mids[coin]
	f.mu.RUnlock()
	if !ok || f.now().Sub(q.at) > maxAge {
		return 0, false
	}
	return q.px, true
}

func (f *MidsFeed) set(mids map[string]string) {
	at := f.now()
	f.mu.Lock()
	defer f.mu.Unlock()
	for coin, raw := range mids {
		px, err := strconv.ParseFloat(raw, 64)
		if err != nil || px <= 0 {
			continue
		}
		f.mids[coin] = midQuote{px: px, at: at}
	}
}

// Run subscribes to allMids and reconnects until ctx is cancelled.
func (f *MidsFeed) Run(ctx context.Context) {
	for {
		if err := f.session(ctx); err != nil && ctx.Err() == nil {
			f.log.Warn("mids stream dropped", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wsReconnectDelay):
		}
	}
}

func (f *MidsFeed) session(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sub := map[string]any{
		"method":       "subscribe",
		"subscription": map[string]string{"type": "allMids"},
	}
	if err := f.writeJSON(conn, sub); err != nil {
		return err
	}
	f.log.Info("mids stream subscribed", zap.String("url", f.url))

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		t := time.NewTicker(wsPingEvery)
		defer t.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-t.C:
				_ = f.writeJSON(conn, map[string]string{"method": "ping"})
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame struct {
			Channel string `json:"channel"`
			Data    struct {
				Mids map[string]string `json:"mids"`
			} `json:"data"`
		}
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Channel != "allMids" || len(frame.Data.Mids) == 0 {
			continue
		}
		f.set(frame.Data.Mids)
	}
}

func (f *MidsFeed) writeJSON(conn *websocket.Conn, v any) error {
	b, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}
