package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from TOML.
type Config struct {
	Environment string  `toml:"Environment"`
	DataDir     string  `toml:"DataDir"`
	Economy     Economy `toml:"Economy"`
	Gateway     Gateway `toml:"Gateway"`
}

// Economy tunes the ledger parameters. Amounts are decimal strings in minor
// units (one unit = 0.01 of the community currency).
type Economy struct {
	DailyAllowance       string            `toml:"DailyAllowance"`
	CommunityAllowances  map[string]string `toml:"CommunityAllowances"`
	WithdrawIncrement    string            `toml:"WithdrawIncrement"`
	DefaultInvestorShare uint32            `toml:"DefaultInvestorShare"`
}

// Gateway configures the HTTP surface.
type Gateway struct {
	ListenAddress   string            `toml:"ListenAddress"`
	ReadOnly        bool              `toml:"ReadOnly"`
	AuthEnabled     bool              `toml:"AuthEnabled"`
	AuthSecret      string            `toml:"AuthSecret"`
	AuthIssuer      string            `toml:"AuthIssuer"`
	AuthAudience    string            `toml:"AuthAudience"`
	AuthClockSkew   duration          `toml:"AuthClockSkew"`
	StorePath       string            `toml:"StorePath"`
	OutboxPath      string            `toml:"OutboxPath"`
	WebhooksFile    string            `toml:"WebhooksFile"`
	LogRequests     bool              `toml:"LogRequests"`
	TracingEnabled  bool              `toml:"TracingEnabled"`
	RateLimits      map[string]Limit  `toml:"RateLimits"`
	TrustedProxies  []string          `toml:"TrustedProxies"`
	ResponseHeaders map[string]string `toml:"ResponseHeaders"`
}

// Limit is one rate-limit bucket.
type Limit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Load reads and validates the configuration file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Environment: "dev",
		DataDir:     "./data",
		Economy: Economy{
			DailyAllowance:       "1000",
			WithdrawIncrement:    "10",
			DefaultInvestorShare: 50,
		},
		Gateway: Gateway{
			ListenAddress: ":8545",
			StorePath:     "./data/gateway.db",
			OutboxPath:    "./data/outbox.db",
			RateLimits: map[string]Limit{
				"reads":  {RequestsPerMinute: 600, Burst: 50},
				"writes": {RequestsPerMinute: 120, Burst: 10},
			},
		},
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if _, err := c.Economy.dailyAllowance(); err != nil {
		return err
	}
	if _, err := c.Economy.withdrawIncrement(); err != nil {
		return err
	}
	if _, err := c.Economy.communityAllowances(); err != nil {
		return err
	}
	if c.Economy.DefaultInvestorShare > 100 {
		return fmt.Errorf("config: DefaultInvestorShare must be at most 100")
	}
	if c.Gateway.AuthEnabled && strings.TrimSpace(c.Gateway.AuthSecret) == "" {
		return fmt.Errorf("config: AuthSecret is required when AuthEnabled")
	}
	return nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("config: %s must be a non-negative decimal amount, got %q", field, raw)
	}
	return v, nil
}

func (e Economy) dailyAllowance() (*big.Int, error) {
	return parseAmount("Economy.DailyAllowance", e.DailyAllowance)
}

func (e Economy) withdrawIncrement() (*big.Int, error) {
	return parseAmount("Economy.WithdrawIncrement", e.WithdrawIncrement)
}

func (e Economy) communityAllowances() (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(e.CommunityAllowances))
	for community, raw := range e.CommunityAllowances {
		v, err := parseAmount("Economy.CommunityAllowances."+community, raw)
		if err != nil {
			return nil, err
		}
		out[community] = v
	}
	return out, nil
}

// DailyAllowance returns the parsed default allowance.
func (e Economy) DailyAllowanceAmount() *big.Int {
	v, err := e.dailyAllowance()
	if err != nil {
		return big.NewInt(0)
	}
	return v
}

// WithdrawIncrementAmount returns the parsed withdrawal increment.
func (e Economy) WithdrawIncrementAmount() *big.Int {
	v, err := e.withdrawIncrement()
	if err != nil {
		return big.NewInt(0)
	}
	return v
}

// CommunityAllowanceAmounts returns the parsed per-community overrides.
func (e Economy) CommunityAllowanceAmounts() map[string]*big.Int {
	out, err := e.communityAllowances()
	if err != nil {
		return nil
	}
	return out
}
