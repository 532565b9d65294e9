// Package commands provides the cobra commands for the server binary.
package commands

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gitlab.com/grcflow/grcflow/common/logx"
	showNatsConfig "gitlab.com/grcflow/grcflow/server/commands/show-nats-config"
	"gitlab.com/grcflow/grcflow/server/config"
	"gitlab.com/grcflow/grcflow/server/flags"
	"gitlab.com/grcflow/grcflow/server/server"
	"gitlab.com/grcflow/grcflow/server/server/option"
	"gitlab.com/grcflow/grcflow/server/services/natz"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "grcflow",
	Short: "GRCFlow Server",
	Long:  ``,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.GetEnvironment()
		if err != nil {
			log.Fatal(err)
		}
		var lev slog.Level
		var addSource bool
		switch cfg.LogLevel {
		case "debug":
			lev = slog.LevelDebug
			addSource = true
		case "info":
			lev = slog.LevelInfo
		case "warn":
			lev = slog.LevelWarn
		default:
			lev = slog.LevelError
		}

		if flags.Value.NatsConfig != "" {
			b, err := os.ReadFile(flags.Value.NatsConfig)
			if err != nil {
				slog.Error("read nats configuration file", slog.String("error", err.Error()))
				os.Exit(1)
			}
			natz.NatsConfig = string(b)
		}

		logx.SetDefault(cfg.LogHandler, lev, addSource, "grcflow")

		options := []option.Option{
			option.NatsUrl(cfg.NatsURL),
			option.GrpcPort(cfg.Port),
			option.WithTelemetryEndpoint(cfg.TelemetryEndpoint),
		}
		if cfg.EphemeralStorage {
			options = append(options, option.EphemeralStorage())
		}
		if cfg.JetStreamDomain != "" {
			options = append(options, option.WithJetStreamDomain(cfg.JetStreamDomain))
		}
		svr := server.New(options...)
		if err := svr.Listen(); err != nil {
			log.Fatal(err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	RootCmd.AddCommand(showNatsConfig.RootCmd)
	RootCmd.Flags().StringVar(&flags.Value.NatsConfig, flags.NatsConfig, "", "provides a path to a nats configuration file.  The current config file can be obtained using 'show-nats-config'")
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
