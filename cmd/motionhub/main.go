package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"motionhub/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "motionhub",
		Short: "Fuse controller and device motion sensors into one orientation stream",
		Long: `motionhub picks a gyroscope and an accelerometer each tick, preferring
connected game controllers and falling back to the device's own sensors,
and fuses them into acceleration, angular rate and orientation.

The fused state is served over HTTP/WebSocket and optionally sent as UDP
datagrams or MQTT messages.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./motionhub.yaml", "Path to YAML config")

	sensors := &cobra.Command{
		Use:   "sensors",
		Short: "List device sensors and motion-capable controllers, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			return listSensors(cmd.OutOrStdout(), cfg)
		},
	}
	var watchFor time.Duration
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Run the fusion loop for a while without network outputs and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return watchMotion(ctx, cmd.OutOrStdout(), cfg, watchFor)
		},
	}
	watch.Flags().DurationVar(&watchFor, "duration", 5*time.Second, "How long to sample")

	root.AddCommand(sensors, watch)
	return root
}

func run(ctx context.Context, cfg config.Config) error {
	rt, err := newDaemon(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	log.Printf("motionhub starting")
	err = rt.Run(ctx)
	log.Printf("motionhub stopping")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
