package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Market   MarketConfig   `yaml:"market"`
	Resolver ResolverConfig `yaml:"resolver"`
	LLM      LLMConfig      `yaml:"llm"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type StoreConfig struct {
	Sqlite SqliteConfig `yaml:"sqlite"`
}

type SqliteConfig struct {
	Path string `yaml:"path"`
}

type MarketConfig struct {
	HTTPTimeoutMs int            `yaml:"http_timeout_ms"`
	Sources       []SourceConfig `yaml:"sources"`
}

// SourceConfig is one row of the adapter priority/timeout table. Lower
// priority is tried first; declaration order breaks ties.
type SourceConfig struct {
	Name          string `yaml:"name"`
	Enabled       bool   `yaml:"enabled"`
	Priority      int    `yaml:"priority"`
	TimeoutMs     int    `yaml:"timeout_ms"`
	MinIntervalMs int    `yaml:"min_interval_ms"`
}

type ResolverConfig struct {
	IndexCodes     []string `yaml:"index_codes"`
	IndexPrefixes  []string `yaml:"index_prefixes"`
	FundPrefixes   []string `yaml:"fund_prefixes"`
	ASharePrefixes []string `yaml:"a_share_prefixes"`
}

type LLMConfig struct {
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	ByAzure    bool   `yaml:"by_azure"`
	APIVersion string `yaml:"api_version"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

type AnalysisConfig struct {
	StreamTimeoutSec int `yaml:"stream_timeout_sec"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info"},
		Store: StoreConfig{
			Sqlite: SqliteConfig{Path: "data/app.db"},
		},
		Market: MarketConfig{
			HTTPTimeoutMs: 10000,
			Sources: []SourceConfig{
				{Name: "eastmoney", Enabled: true, Priority: 1, TimeoutMs: 5000, MinIntervalMs: 200},
				{Name: "sina", Enabled: true, Priority: 2, TimeoutMs: 5000, MinIntervalMs: 200},
				{Name: "tencent", Enabled: true, Priority: 3, TimeoutMs: 5000, MinIntervalMs: 200},
			},
		},
		Resolver: ResolverConfig{
			IndexCodes:     []string{"000001", "000016", "000300", "000688", "000905", "399001", "399006"},
			IndexPrefixes:  []string{"399"},
			FundPrefixes:   []string{"50", "51", "56", "58", "15", "16"},
			ASharePrefixes: []string{"60", "68", "00", "30"},
		},
		LLM: LLMConfig{
			Model:     "gpt-4o",
			TimeoutMs: 60000,
		},
		Analysis: AnalysisConfig{StreamTimeoutSec: 120},
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid PORT: %q", v)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	return nil
}
