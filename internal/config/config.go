// Package config builds the immutable run configuration from viper.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"valetbench/internal/runner"
	"valetbench/internal/strategy"
)

// Strategy names accepted by the strategy key.
const (
	StrategyProxy    = "proxy"
	StrategyValetKey = "valetkey"
)

// EnvPrefix is prepended to environment overrides, e.g. VALETBENCH_BASE_URL.
const EnvPrefix = "VALETBENCH"

type AzCopy struct {
	Path        string `mapstructure:"path"`
	Concurrency int    `mapstructure:"concurrency"`
	BlockSizeMB int    `mapstructure:"block_size_mb"`
	CapMbps     int    `mapstructure:"cap_mbps"`
	PutMD5      bool   `mapstructure:"put_md5"`
}

// Config is built once before a run and never modified afterwards.
type Config struct {
	BaseURL   string `mapstructure:"base_url"`
	LoginPath string `mapstructure:"login_path"`
	ProxyPath string `mapstructure:"proxy_path"`
	SASPath   string `mapstructure:"sas_path"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Session  string `mapstructure:"session"`

	Strategy       string `mapstructure:"strategy"`
	MaxConcurrency int    `mapstructure:"max_concurrency"`
	Dir            string `mapstructure:"dir"`
	Out            string `mapstructure:"out"`
	Extended       bool   `mapstructure:"extended"`

	Timeout  time.Duration `mapstructure:"timeout"`
	Insecure bool          `mapstructure:"insecure"`

	ObjectName string `mapstructure:"object_name"`
	Transfer   string `mapstructure:"transfer"`
	AzCopy     AzCopy `mapstructure:"azcopy"`

	ClientMetrics bool   `mapstructure:"client_metrics"`
	MetricsAddr   string `mapstructure:"metrics_addr"`
	TUI           bool   `mapstructure:"tui"`
	HistoryDB     string `mapstructure:"history_db"`

	// Levels is derived from the levels key. LevelsFallback is true when
	// the input was empty or invalid and DefaultLevels was used instead.
	Levels         []int `mapstructure:"-"`
	LevelsFallback bool  `mapstructure:"-"`
}

// SetDefaults registers the default value of every key. Keys without a
// default are invisible to environment overrides during Unmarshal, so every
// key gets one.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("session", "")
	v.SetDefault("out", "")
	v.SetDefault("extended", false)
	v.SetDefault("insecure", false)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("tui", false)
	v.SetDefault("history_db", "")
	v.SetDefault("login_path", "/login")
	v.SetDefault("proxy_path", "/user/proxy-upload")
	v.SetDefault("sas_path", "/user/upload-sas")
	v.SetDefault("strategy", StrategyProxy)
	v.SetDefault("levels", "")
	v.SetDefault("max_concurrency", runner.MaxConcurrency)
	v.SetDefault("dir", ".")
	v.SetDefault("timeout", strategy.DefaultTimeout)
	v.SetDefault("object_name", strategy.DefaultNameTemplate)
	v.SetDefault("transfer", strategy.ModePut)
	v.SetDefault("azcopy.path", "azcopy")
	v.SetDefault("azcopy.concurrency", 32)
	v.SetDefault("azcopy.block_size_mb", 8)
	v.SetDefault("azcopy.cap_mbps", 0)
	v.SetDefault("azcopy.put_md5", false)
	v.SetDefault("client_metrics", true)
}

// Load unmarshals v and validates the result.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	c.Strategy = strings.ToLower(strings.TrimSpace(c.Strategy))
	if c.Strategy == "sas" {
		c.Strategy = StrategyValetKey
	}
	c.Transfer = strings.ToLower(strings.TrimSpace(c.Transfer))
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = runner.MaxConcurrency
	}
	var ok bool
	c.Levels, ok = runner.ParseLevels(levelsInput(v.Get("levels")), c.MaxConcurrency)
	c.LevelsFallback = !ok
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("base_url: %w", err))
	}
	switch c.Strategy {
	case StrategyProxy, StrategyValetKey:
	default:
		errs = append(errs, fmt.Errorf("strategy: unknown %q (want proxy or valetkey)", c.Strategy))
	}
	switch c.Transfer {
	case strategy.ModePut, strategy.ModeAzCopy, strategy.ModeSDK:
	default:
		errs = append(errs, fmt.Errorf("transfer: unknown %q (want put, azcopy or sdk)", c.Transfer))
	}
	if c.Dir == "" {
		errs = append(errs, errors.New("dir: required"))
	}
	if c.Session == "" && c.Username == "" {
		errs = append(errs, errors.New("username or session: one is required"))
	}
	if c.AzCopy.Concurrency < 0 || c.AzCopy.Concurrency > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("azcopy.concurrency: must be between 0 and %d", math.MaxUint16))
	}
	if c.AzCopy.BlockSizeMB < 0 {
		errs = append(errs, errors.New("azcopy.block_size_mb: must not be negative"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout: must not be negative"))
	}
	return errors.Join(errs...)
}

// Label is the short strategy name used in file names.
func (c Config) Label() string {
	if c.Strategy == StrategyValetKey {
		if c.Transfer == strategy.ModeAzCopy {
			return "azcopy"
		}
		return "sas"
	}
	return c.Strategy
}

// levelsInput flattens the levels key, which may be a string ("1,2,4"),
// a number or a YAML list, into the comma separated form.
func levelsInput(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case []int:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, ",")
	case []any:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = fmt.Sprint(n)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(v, ",")
	default:
		return fmt.Sprint(v)
	}
}
