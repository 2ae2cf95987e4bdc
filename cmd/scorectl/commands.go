package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

import (
	"github.com/spf13/cobra"
)

import (
	"github.com/nanjiek/pixiu-score/internal/app"
	"github.com/nanjiek/pixiu-score/internal/config"
	"github.com/nanjiek/pixiu-score/internal/scoring"
)

type rootFlags struct {
	configPath string
	timeout    time.Duration
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "scorectl",
		Short:         "Operate the wallet score service from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "configs/score.yaml", "path to config file")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 60*time.Second, "overall deadline for the command")

	root.AddCommand(
		newScoreCmd(flags),
		newPurgeCmd(flags),
		newCheckConfigCmd(flags),
	)
	return root
}

func withApp(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg.Log, cmd.ErrOrStderr())
	a, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()
	return fn(ctx, a)
}

func newScoreCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "score <address>",
		Short: "Compute (or read from cache) the score of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				score, err := a.Engine.ComputeScore(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					WalletAddress string `json:"wallet_address"`
					Score         any    `json:"score"`
					Rating        string `json:"rating"`
				}{args[0], score, scoring.Rating(score.FinalScore)})
			})
		},
	}
}

func newPurgeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <address>",
		Short: "Delete the cached score of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				if a.Store.Delete(ctx, args[0]) {
					fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "no cached score for %s\n", args[0])
				}
				return nil
			})
		},
	}
}

func newCheckConfigCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file without connecting to anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: http=%s rateLimit=%d/%ds keyStrategy=%s cacheTTL=%ds\n",
				cfg.Server.HTTPAddr, cfg.RateLimit.MaxRequests, cfg.RateLimit.WindowSeconds,
				cfg.RateLimit.KeyStrategy, cfg.Cache.TTLSeconds)
			return nil
		},
	}
}
