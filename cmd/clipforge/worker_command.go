package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"clipforge/internal/acquire"
	"clipforge/internal/deps"
	"clipforge/internal/gateway"
	"clipforge/internal/services/downloader"
	"clipforge/internal/services/encoder"
	"clipforge/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var queue string
	var gatewayURL string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run an execution worker bound to one queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			baseURL := strings.TrimSpace(gatewayURL)
			if baseURL == "" {
				baseURL = strings.TrimSpace(cfg.Gateway.WorkerBaseURL)
			}
			if baseURL == "" {
				return errors.New("gateway URL required (set gateway.worker_base_url or --gateway)")
			}
			if strings.TrimSpace(cfg.Gateway.Token) == "" {
				return errors.New("gateway token required (set gateway.token or CLIPFORGE_API_TOKEN)")
			}

			if missing := deps.Missing(deps.CheckBinaries(deps.WorkerRequirements(cfg))); len(missing) > 0 {
				for _, status := range missing {
					fmt.Fprintf(cmd.ErrOrStderr(), "warn: %s unavailable: %s\n", status.Name, status.Detail)
				}
			}

			client := gateway.NewClient(baseURL, cfg.Gateway.Token)
			fetch, err := downloader.New(cfg.Acquire.DownloaderBinary, cfg.Acquire.DownloadTimeout)
			if err != nil {
				return fmt.Errorf("downloader: %w", err)
			}
			probe, err := encoder.New(cfg.Encode.FFmpegBinary, cfg.Encode.FFprobeBinary, cfg.Encode.EncodeTimeout)
			if err != nil {
				return fmt.Errorf("encoder: %w", err)
			}
			cache := acquire.NewCache(cfg, logger)
			acquirer := acquire.NewAcquirer(client, cache, fetch, probe, cfg.Paths.StagingDir, logger)

			pool := worker.NewPool(cfg, client, acquirer, probe, queue, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "worker %s claiming from queue %q\n", pool.ID(), queue)

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if err := pool.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "standard", "Queue to claim jobs from")
	cmd.Flags().StringVar(&gatewayURL, "gateway", "", "Gateway base URL (overrides configuration)")
	return cmd
}
