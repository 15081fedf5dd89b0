package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/guregu/null.v4"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/bridge"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/config"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lite-rpc",
		Short:         "Lightweight Solana RPC bridge serving cached block data and signature subscriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := setupViper(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), v)
		},
	}

	f := cmd.Flags()
	f.String("config", "", "path to a config file (toml, yaml or json)")
	f.String("rpc-url", "", "upstream node JSON-RPC endpoint")
	f.String("ws-url", "", "upstream node websocket endpoint")
	f.String("http-addr", "", "listen address for JSON-RPC over HTTP")
	f.String("ws-addr", "", "listen address for websocket subscriptions")
	f.String("commitment", "", "default commitment for requests that omit one")
	f.Duration("request-timeout", 0, "timeout for each upstream request")
	f.Duration("block-poll-period", 0, "block information refresh period")
	f.Duration("confirm-poll-period", 0, "signature status polling period")
	f.Int("max-sigs-to-confirm", 0, "signatures per getSignatureStatuses call")
	f.Int("confirm-workers", 0, "concurrent getSignatureStatuses calls")
	f.Int("notification-buffer-size", 0, "notifications buffered before a slow connection lags")
	f.Duration("clean-interval", 0, "signature status eviction period")
	f.Duration("signature-retention", 0, "how long a tracked signature is kept")
	f.Bool("debug", false, "enable debug logging")
	f.Bool("json-logs", false, "log as JSON")
	return cmd
}

// setupViper layers flags over LITE_RPC_* environment variables over the optional config file.
func setupViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("LITE_RPC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// overrides only fills the values an operator actually set, everything else keeps its default.
func overrides(v *viper.Viper) config.Overrides {
	str := func(key string) null.String {
		if !v.IsSet(key) || v.GetString(key) == "" {
			return null.String{}
		}
		return null.StringFrom(v.GetString(key))
	}
	integer := func(key string) null.Int {
		if !v.IsSet(key) || v.GetInt64(key) == 0 {
			return null.Int{}
		}
		return null.IntFrom(v.GetInt64(key))
	}
	ms := func(key string) null.Int {
		if !v.IsSet(key) || v.GetDuration(key) == 0 {
			return null.Int{}
		}
		return null.IntFrom(v.GetDuration(key).Milliseconds())
	}

	return config.Overrides{
		RPCURL:                 v.GetString("rpc-url"),
		WSURL:                  v.GetString("ws-url"),
		HTTPListenAddr:         str("http-addr"),
		WSListenAddr:           str("ws-addr"),
		Commitment:             str("commitment"),
		RequestTimeoutMs:       ms("request-timeout"),
		BlockPollPeriodMs:      ms("block-poll-period"),
		ConfirmPollPeriodMs:    ms("confirm-poll-period"),
		MaxSigsToConfirm:       integer("max-sigs-to-confirm"),
		ConfirmWorkers:         integer("confirm-workers"),
		NotificationBufferSize: integer("notification-buffer-size"),
		CleanIntervalMs:        ms("clean-interval"),
		SignatureRetentionMs:   ms("signature-retention"),
	}
}

func run(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lggr, err := logger.New(logger.Config{Debug: v.GetBool("debug"), JSONConsole: v.GetBool("json-logs")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = lggr.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.NewConfig(overrides(v), lggr)

	initCtx, cancel := context.WithTimeout(ctx, 2*cfg.RequestTimeout()+time.Second)
	b, err := bridge.New(initCtx, cfg, lggr)
	cancel()
	if err != nil {
		lggr.Errorw("failed to start lite-rpc", "error", err)
		return err
	}

	lggr.Infow("lite-rpc started",
		"network", b.Network(),
		"rpcURL", cfg.RPCEndpoint(),
		"wsURL", cfg.WSEndpoint(),
		"httpAddr", cfg.HTTPListenAddr(),
		"wsAddr", cfg.WSListenAddr(),
		"commitment", cfg.Commitment(),
	)
	if err := b.Run(ctx); err != nil {
		lggr.Errorw("lite-rpc stopped with error", "error", err)
		return err
	}
	return nil
}
