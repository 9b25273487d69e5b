package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	type want struct {
		runAddress    string
		ledgerAddress string
		pollInterval  time.Duration
		prepareWindow time.Duration
		settleWindow  time.Duration
	}

	tests := []struct {
		name  string
		env   map[string]string
		flags []string
		want  want
	}{
		{
			name:  "defaults",
			env:   map[string]string{},
			flags: []string{},
			want: want{
				runAddress:    "localhost:8080",
				pollInterval:  5 * time.Second,
				prepareWindow: 2 * time.Hour,
				settleWindow:  24 * time.Hour,
			},
		},
		{
			name: "env only",
			env: map[string]string{
				"RUN_ADDRESS":    "localhost:9999",
				"LEDGER_ADDRESS": "ledger:7575",
				"POLL_INTERVAL":  "10s",
			},
			flags: []string{},
			want: want{
				runAddress:    "localhost:9999",
				ledgerAddress: "ledger:7575",
				pollInterval:  10 * time.Second,
				prepareWindow: 2 * time.Hour,
				settleWindow:  24 * time.Hour,
			},
		},
		{
			name: "flags only",
			env:  map[string]string{},
			flags: []string{
				"-a", "localhost:7777",
				"-l", "flag-ledger:7575",
				"-i", "3s",
				"-p", "1h",
				"-w", "12h",
			},
			want: want{
				runAddress:    "localhost:7777",
				ledgerAddress: "flag-ledger:7575",
				pollInterval:  3 * time.Second,
				prepareWindow: time.Hour,
				settleWindow:  12 * time.Hour,
			},
		},
		{
			name: "env overrides flags",
			env: map[string]string{
				"RUN_ADDRESS":    "env:9000",
				"LEDGER_ADDRESS": "env-ledger:7575",
				"POLL_INTERVAL":  "30s",
			},
			flags: []string{
				"-a", "flag:8000",
				"-l", "flag-ledger:7575",
				"-i", "3s",
			},
			want: want{
				runAddress:    "env:9000",
				ledgerAddress: "env-ledger:7575",
				pollInterval:  30 * time.Second,
				prepareWindow: 2 * time.Hour,
				settleWindow:  24 * time.Hour,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			os.Args = append([]string{"test"}, tt.flags...)

			cfg, err := Parse()
			require.NoError(t, err)

			assert.Equal(t, tt.want.runAddress, cfg.RunAddress)
			assert.Equal(t, tt.want.ledgerAddress, cfg.LedgerAddress)
			assert.Equal(t, tt.want.pollInterval, cfg.PollInterval)
			assert.Equal(t, tt.want.prepareWindow, cfg.PrepareWindow)
			assert.Equal(t, tt.want.settleWindow, cfg.SettleWindow)
		})
	}
}
