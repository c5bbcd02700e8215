package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/faultline/internal/logging"
	"github.com/telhawk-systems/faultline/internal/seeder"
)

var (
	seedURL        string
	seedProjects   string
	seedCount      int
	seedInterval   time.Duration
	seedTimeSpread time.Duration
	seedGzip       bool
	seedSeed       int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Send generated error envelopes to a running server",
	Long: `Generate realistic Sentry-style error envelopes and POST them to a running
faultline server.

Examples:
  # 100 events for one project
  faultline seed --project 5f0c3b9e --count 100

  # Spread events over two projects, gzip-compressed, over the last week
  faultline seed --project a,b --gzip --time-spread 168h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var keys []string
		for _, k := range strings.Split(seedProjects, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}

		logger := logging.New(logging.ParseLevel("info"), "text")
		runner := seeder.NewRunner(seeder.Config{
			URL:         seedURL,
			ProjectKeys: keys,
			Count:       seedCount,
			Interval:    seedInterval,
			TimeSpread:  seedTimeSpread,
			Gzip:        seedGzip,
			Seed:        seedSeed,
		}, logger)

		summary, err := runner.Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d envelopes, %d failed\n", summary.Sent, summary.Failed)
		if summary.Failed > 0 && summary.Sent == 0 {
			return fmt.Errorf("every envelope failed")
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedURL, "url", "http://localhost:8000", "faultline server base URL")
	seedCmd.Flags().StringVar(&seedProjects, "project", "", "comma-separated project public keys (required)")
	seedCmd.Flags().IntVar(&seedCount, "count", 10, "number of envelopes to send")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 0, "delay between envelopes")
	seedCmd.Flags().DurationVar(&seedTimeSpread, "time-spread", 0, "spread event timestamps over this window")
	seedCmd.Flags().BoolVar(&seedGzip, "gzip", false, "gzip-compress envelope bodies")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 0, "random seed (0 for random)")
	_ = seedCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(seedCmd)
}
