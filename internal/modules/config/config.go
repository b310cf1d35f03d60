package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"dip_bot/internal/strategy"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDir         = "configs"
	defaultConfigFile = "values_local.yaml"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config ...
type Config struct {
	// Symbol is the unified market name, e.g. HYPE/USDC:USDC.
	Symbol string `yaml:"symbol"`

	Strategy struct {
		BaseSize          float64   `yaml:"base_size"`
		NormalSize        float64   `yaml:"normal_size"`
		DeepSize          float64   `yaml:"deep_size"`
		NuclearMultiplier float64   `yaml:"nuclear_multiplier"`
		MaxDailyLoss      float64   `yaml:"max_daily_loss"`
		FundingMax        float64   `yaml:"funding_max"`
		ImbalanceMin      float64   `yaml:"imbalance_min"`
		ProfitTargets     []float64 `yaml:"profit_targets"`
		FinalTarget       float64   `yaml:"final_target"`
		NoTradeStart      int       `yaml:"no_trade_start"` // UTC hour, inclusive
		NoTradeEnd        int       `yaml:"no_trade_end"`   // UTC hour, exclusive
		VWAPWindow        int       `yaml:"vwap_window"`
		ATRWindow         int       `yaml:"atr_window"`
		VWAPATRMultiplier float64   `yaml:"vwap_atr_multiplier"`
		OrderBookDepth    int       `yaml:"orderbook_depth"`
	} `yaml:"strategy"`

	Exchange struct {
		DryRun     bool    `yaml:"dry_run"`
		Testnet    bool    `yaml:"testnet"`
		BaseURL    string  `yaml:"base_url"`
		PrivateKey string  `yaml:"private_key"`
		Slippage   float64 `yaml:"slippage"`
		UseWS      bool    `yaml:"use_ws"`
	} `yaml:"exchange"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
		// Endpoint is a Bot API URL format for a self-hosted server, e.g. "http://host/bot%s/%s".
		Endpoint string `yaml:"api_endpoint"`
	} `yaml:"telegram"`

	State struct {
		Backend   string `yaml:"backend"`
		Path      string `yaml:"path"`
		DB        string `yaml:"db_dsn"`
		RedisAddr string `yaml:"redis_addr"`
	} `yaml:"state"`

	Service struct {
		Name         string        `yaml:"name"`
		HealthAddr   string        `yaml:"health_addr"`
		PollInterval time.Duration `yaml:"poll_interval"`
		ErrorBackoff time.Duration `yaml:"error_backoff"`
		LogLevel     string        `yaml:"log_level"`
		Development  bool          `yaml:"development"`
	} `yaml:"service"`

	Tracing struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"tracing"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{Symbol: "HYPE/USDC:USDC"}

	s := &c.Strategy
	s.BaseSize = 7.7
	s.NormalSize = 23.8
	s.DeepSize = 170
	s.NuclearMultiplier = 1.5
	s.MaxDailyLoss = 1500
	s.FundingMax = 0.0003
	s.ImbalanceMin = 1.8
	s.ProfitTargets = []float64{1.008, 1.015}
	s.FinalTarget = 1.025
	s.NoTradeStart = 3
	s.NoTradeEnd = 7
	s.VWAPWindow = 1440
	s.ATRWindow = 120
	s.VWAPATRMultiplier = 1.2
	s.OrderBookDepth = 20

	c.Exchange.DryRun = true
	c.Exchange.Slippage = 0.05
	c.Exchange.UseWS = true

	c.State.Backend = BackendFile
	c.State.Path = "bot_state.json"

	c.Service.Name = "dip_bot"
	c.Service.HealthAddr = ":8080"
	c.Service.PollInterval = 2 * time.Second
	c.Service.ErrorBackoff = 10 * time.Second
	c.Service.LogLevel = "info"

	c.Tracing.Host = "localhost"
	c.Tracing.Port = 6831
	return c
}

// NewConfig loads configs/$CONFIG_FILE, then .env, then environment overrides.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	name := os.Getenv(configFilePathENV)
	if name == "" {
		name = defaultConfigFile
	}
	return Load(filepath.Join(configDir, name))
}

// Load decodes path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open config %s: %w", path, err)
	default:
		defer func() {
			_ = file.Close()
		}()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type envOverride struct {
	envs  []string
	apply func(string) error
}

func (c *Config) overrides() []envOverride {
	s := &c.Strategy
	return []envOverride{
		{[]string{"SYMBOL"}, setString(&c.Symbol)},
		{[]string{"BASE_SIZE"}, setFloat(&s.BaseSize)},
		{[]string{"NORMAL_SIZE"}, setFloat(&s.NormalSize)},
		{[]string{"DEEP_SIZE"}, setFloat(&s.DeepSize)},
		{[]string{"NUCLEAR_MULTIPLIER"}, setFloat(&s.NuclearMultiplier)},
		{[]string{"MAX_DAILY_LOSS"}, setFloat(&s.MaxDailyLoss)},
		{[]string{"FUNDING_MAX"}, setFloat(&s.FundingMax)},
		{[]string{"IMBALANCE_MIN"}, setFloat(&s.ImbalanceMin)},
		{[]string{"PROFIT_TARGETS"}, setFloats(&s.ProfitTargets)},
		{[]string{"FINAL_TARGET"}, setFloat(&s.FinalTarget)},
		{[]string{"NO_TRADE_START"}, setInt(&s.NoTradeStart)},
		{[]string{"NO_TRADE_END"}, setInt(&s.NoTradeEnd)},
		{[]string{"VWAP_WINDOW"}, setInt(&s.VWAPWindow)},
		{[]string{"ATR_WINDOW"}, setInt(&s.ATRWindow)},
		{[]string{"VWAP_ATR_MULTIPLIER"}, setFloat(&s.VWAPATRMultiplier)},
		{[]string{"ORDERBOOK_DEPTH"}, setInt(&s.OrderBookDepth)},

		{[]string{"DRY_RUN"}, setBool(&c.Exchange.DryRun)},
		{[]string{"TESTNET"}, setBool(&c.Exchange.Testnet)},
		{[]string{"HYPERLIQUID_BASE_URL"}, setString(&c.Exchange.BaseURL)},
		{[]string{"HYPERLIQUID_PRIVATE_KEY", "HYPERLIQUID_API_SECRET"}, setString(&c.Exchange.PrivateKey)},
		{[]string{"SLIPPAGE"}, setFloat(&c.Exchange.Slippage)},
		{[]string{"USE_WS"}, setBool(&c.Exchange.UseWS)},

		{[]string{"TELEGRAM_TOKEN"}, setString(&c.Telegram.Token)},
		{[]string{"TELEGRAM_CHAT_ID"}, setInt64(&c.Telegram.ChatID)},
		{[]string{"TELEGRAM_API_ENDPOINT"}, setString(&c.Telegram.Endpoint)},

		{[]string{"STATE_BACKEND"}, setString(&c.State.Backend)},
		{[]string{"STATE_PATH"}, setString(&c.State.Path)},
		{[]string{"DATABASE_DSN"}, setString(&c.State.DB)},
		{[]string{"REDIS_ADDR"}, setString(&c.State.RedisAddr)},

		{[]string{"HEALTH_ADDR"}, setString(&c.Service.HealthAddr)},
		{[]string{"POLL_INTERVAL"}, setDuration(&c.Service.PollInterval)},
		{[]string{"ERROR_BACKOFF"}, setDuration(&c.Service.ErrorBackoff)},
		{[]string{"LOG_LEVEL"}, setString(&c.Service.LogLevel)},

		{[]string{"TRACING_ENABLED"}, setBool(&c.Tracing.Enabled)},
		{[]string{"JAEGER_HOST"}, setString(&c.Tracing.Host)},
		{[]string{"JAEGER_PORT"}, setInt(&c.Tracing.Port)},
	}
}

func (c *Config) applyEnv() error {
	v := viper.New()
	for _, o := range c.overrides() {
		key := o.envs[0]
		if err := v.BindEnv(append([]string{key}, o.envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
		if !v.IsSet(key) {
			continue
		}
		if err := o.apply(strings.TrimSpace(v.GetString(key))); err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
	}
	return nil
}

// Validate rejects configurations the strategy cannot run safely with.
func (c *Config) Validate() error {
	s := c.Strategy
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Coin() != "", "symbol is empty")
	check(s.BaseSize > 0 && s.NormalSize > 0 && s.DeepSize > 0, "ladder sizes must be positive")
	check(s.NuclearMultiplier >= 1, "nuclear_multiplier %v < 1", s.NuclearMultiplier)
	check(s.MaxDailyLoss > 0, "max_daily_loss must be positive")
	check(s.ImbalanceMin >= 0, "imbalance_min must not be negative")
	check(len(s.ProfitTargets) == 2, "profit_targets needs exactly two values, got %d", len(s.ProfitTargets))
	if len(s.ProfitTargets) == 2 {
		t1, t2 := s.ProfitTargets[0], s.ProfitTargets[1]
		check(1 < t1 && t1 < t2 && t2 < s.FinalTarget,
			"targets must satisfy 1 < t1 < t2 < final, got %v < %v < %v", t1, t2, s.FinalTarget)
	}
	check(0 <= s.NoTradeStart && s.NoTradeStart <= 24 && 0 <= s.NoTradeEnd && s.NoTradeEnd <= 24,
		"blackout hours must be within 0..24")
	check(s.NoTradeStart <= s.NoTradeEnd, "no_trade_start %d after no_trade_end %d", s.NoTradeStart, s.NoTradeEnd)
	check(s.VWAPWindow > 0 && s.ATRWindow > 0, "windows must be positive")
	check(s.ATRWindow < s.VWAPWindow, "atr_window %d must be below vwap_window %d", s.ATRWindow, s.VWAPWindow)
	check(s.VWAPATRMultiplier >= 0, "vwap_atr_multiplier must not be negative")
	check(s.OrderBookDepth > 0, "orderbook_depth must be positive")

	check(c.Exchange.DryRun || c.Exchange.PrivateKey != "", "live trading requires HYPERLIQUID_PRIVATE_KEY")
	check(c.Exchange.Slippage > 0 && c.Exchange.Slippage < 1, "slippage must be in (0, 1)")

	switch c.State.Backend {
	case BackendFile:
		check(c.State.Path != "", "state path is empty")
	case BackendPostgres:
		check(c.State.DB != "", "postgres backend requires DATABASE_DSN")
	case BackendRedis:
		check(c.State.RedisAddr != "", "redis backend requires REDIS_ADDR")
	default:
		check(false, "unknown state backend %q", c.State.Backend)
	}

	check(c.Service.PollInterval > 0 && c.Service.ErrorBackoff > 0, "poll intervals must be positive")

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Coin is the exchange-native asset name: the base of Symbol.
func (c *Config) Coin() string {
	coin, _, _ := strings.Cut(c.Symbol, "/")
	return strings.TrimSpace(coin)
}

func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != "" && c.Telegram.ChatID != 0
}

// StrategyConfig maps the loaded values onto the strategy parameters.
func (c *Config) StrategyConfig() strategy.Config {
	s := c.Strategy
	var targets [2]float64
	copy(targets[:], s.ProfitTargets)
	return strategy.Config{
		BaseSize:          s.BaseSize,
		NormalSize:        s.NormalSize,
		DeepSize:          s.DeepSize,
		NuclearMultiplier: s.NuclearMultiplier,
		MaxDailyLoss:      s.MaxDailyLoss,
		FundingMax:        s.FundingMax,
		ImbalanceMin:      s.ImbalanceMin,
		ProfitTargets:     targets,
		FinalTarget:       s.FinalTarget,
		NoTradeStart:      s.NoTradeStart,
		NoTradeEnd:        s.NoTradeEnd,
		ATRWindow:         s.ATRWindow,
		VWAPATRMultiplier: s.VWAPATRMultiplier,
		OrderBookDepth:    s.OrderBookDepth,
	}
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func setFloats(dst *[]float64) func(string) error {
	return func(v string) error {
		parts := strings.Split(v, ",")
		out := make([]float64, 0, len(parts))
		for _, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return err
			}
			out = append(out, f)
		}
		*dst = out
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setInt64(dst *int64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
