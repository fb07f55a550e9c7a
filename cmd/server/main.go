// Binary server starts the trading-signal inference service: it loads the
// trained model and scaler artifacts, binds a ZeroMQ REP socket, and answers
// one prediction request at a time until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/THA011/AI-meta4/internal/artifact"
	"github.com/THA011/AI-meta4/internal/config"
	"github.com/THA011/AI-meta4/internal/decision"
	"github.com/THA011/AI-meta4/internal/metrics"
	"github.com/THA011/AI-meta4/internal/server"
	"github.com/THA011/AI-meta4/internal/util"
)

var (
	flagConfig string
	flagModel  string
	flagScaler string
	flagHost   string
	flagPort   int
)

var rootCmd = &cobra.Command{
	Use:           "signal-server",
	Short:         "Serve trading-signal predictions over a ZeroMQ REP socket",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "Optional YAML config file")
	rootCmd.Flags().StringVar(&flagModel, "model", "", "Path to the model artifact")
	rootCmd.Flags().StringVar(&flagScaler, "scaler", "", "Path to the scaler artifact")
	rootCmd.Flags().StringVar(&flagHost, "host", "127.0.0.1", "Bind host")
	rootCmd.Flags().IntVar(&flagPort, "port", 5555, "Bind port")
}

func runServe(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load() // best-effort

	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if flagModel != "" {
		cfg.Artifacts.Model = flagModel
	}
	if flagScaler != "" {
		cfg.Artifacts.Scaler = flagScaler
	}
	if cmd.Flags().Changed("host") || cfg.Server.Host == "" {
		cfg.Server.Host = flagHost
	}
	if cmd.Flags().Changed("port") || cfg.Server.Port == 0 {
		cfg.Server.Port = flagPort
	}
	if cfg.Artifacts.Model == "" || cfg.Artifacts.Scaler == "" {
		return fmt.Errorf("model and scaler artifact paths are required")
	}

	log := util.NewLogger(cfg.App.LogLevel)

	scaler, err := artifact.LoadScaler(cfg.Artifacts.Scaler)
	if err != nil {
		return err
	}
	model, err := artifact.LoadModel(cfg.Artifacts.Model)
	if err != nil {
		return err
	}
	policy, err := decision.NewPolicy(cfg.Decision.Threshold)
	if err != nil {
		return err
	}

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	endpoint := fmt.Sprintf("tcp://%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(scaler, model, policy, log)
	if err := srv.Run(ctx, endpoint); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("shutting down")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
