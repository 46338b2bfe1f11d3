package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SOJOSWAP_LOG_LEVEL.
const EnvPrefix = "SOJOSWAP"

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	ChainID           uint64
	StartTime         uint64
	TaxBasisPoints    uint64
	Swaps             int
	Seed              int64
	BlockInterval     time.Duration
	Window            string
	OutDir            string
	Addresses         []string
	Topics            []string
	BatchSize         uint64
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	PGDSN             string
	MetricsAddr       string
	LogLevel          string
}

// Load merges config file, environment variables, and flags into SimulateConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"chain-id":           uint64(31337),
		"start-time":         uint64(1_700_000_000),
		"tax-bps":            uint64(100),
		"swaps":              50,
		"seed":               int64(1),
		"block-interval":     12 * time.Second,
		"window":             "5m",
		"out":                "./data",
		"batch-size":         uint64(100),
		"checkpoint":         "",
		"checkpoint-enabled": false,
		"max-retries":        3,
		"retry-backoff":      100 * time.Millisecond,
		"log-level":          "info",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		ChainID:           v.GetUint64("chain-id"),
		StartTime:         v.GetUint64("start-time"),
		TaxBasisPoints:    v.GetUint64("tax-bps"),
		Swaps:             v.GetInt("swaps"),
		Seed:              v.GetInt64("seed"),
		BlockInterval:     v.GetDuration("block-interval"),
		Window:            v.GetString("window"),
		OutDir:            v.GetString("out"),
		Addresses:         getStringSlice(v, "addresses"),
		Topics:            getStringSlice(v, "topics"),
		BatchSize:         v.GetUint64("batch-size"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		PGDSN:             v.GetString("pg-dsn"),
		MetricsAddr:       v.GetString("metrics-addr"),
		LogLevel:          v.GetString("log-level"),
	}
	if cfg.ChainID == 0 {
		return SimulateConfig{}, fmt.Errorf("chain id must be greater than zero")
	}
	if cfg.TaxBasisPoints > 10_000 {
		return SimulateConfig{}, fmt.Errorf("tax-bps must be at most 10000, got %d", cfg.TaxBasisPoints)
	}
	if cfg.Swaps < 0 {
		return SimulateConfig{}, fmt.Errorf("swaps must not be negative")
	}

	return cfg, nil
}

// newViper layers defaults, SOJOSWAP_* environment variables, bound flags
// and an optional config file. Without an explicit file, ./config.yaml is
// read when present.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
