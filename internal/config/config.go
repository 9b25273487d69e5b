// Package config содержит логику чтения конфигурации сервиса денвер.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса денвер.
type Config struct {
	RunAddress    string        `env:"RUN_ADDRESS"`
	LedgerAddress string        `env:"LEDGER_ADDRESS"`
	LedgerToken   string        `env:"LEDGER_TOKEN"`
	PartySecret   string        `env:"PARTY_SECRET"`
	PollInterval  time.Duration `env:"POLL_INTERVAL"`
	PrepareWindow time.Duration `env:"PREPARE_WINDOW"`
	SettleWindow  time.Duration `env:"SETTLE_WINDOW"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envLedgerAddress := cfg.LedgerAddress
	envLedgerToken := cfg.LedgerToken
	envPartySecret := cfg.PartySecret
	envPollInterval := cfg.PollInterval
	envPrepareWindow := cfg.PrepareWindow
	envSettleWindow := cfg.SettleWindow

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.LedgerAddress, "l", "", "ledger system address")
	flag.StringVar(&cfg.LedgerToken, "t", "", "ledger session token")
	flag.StringVar(&cfg.PartySecret, "s", "", "shared secret for signed party headers")
	flag.DurationVar(&cfg.PollInterval, "i", 5*time.Second, "ledger poll interval")
	flag.DurationVar(&cfg.PrepareWindow, "p", 2*time.Hour, "prepare window for token settlement")
	flag.DurationVar(&cfg.SettleWindow, "w", 24*time.Hour, "settle window for token settlement")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envLedgerAddress != "" {
		cfg.LedgerAddress = envLedgerAddress
	}
	if envLedgerToken != "" {
		cfg.LedgerToken = envLedgerToken
	}
	if envPartySecret != "" {
		cfg.PartySecret = envPartySecret
	}
	if envPollInterval != 0 {
		cfg.PollInterval = envPollInterval
	}
	if envPrepareWindow != 0 {
		cfg.PrepareWindow = envPrepareWindow
	}
	if envSettleWindow != 0 {
		cfg.SettleWindow = envSettleWindow
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
