// Package shownatsconfig prints the embedded NATS setup configuration.
package shownatsconfig

import (
	"fmt"

	"github.com/spf13/cobra"
	"gitlab.com/grcflow/grcflow/server/services/natz"
)

// RootCmd is the show-nats-config command.
var RootCmd = &cobra.Command{
	Use:   "show-nats-config",
	Short: "Prints the active NATS stream and bucket configuration",
	Long:  `Prints the yaml configuration used to provision GRCFlow's NATS streams and key value buckets.  Use it as a starting point for a customised configuration passed with --nats-config.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(natz.NatsConfig)
	},
}
