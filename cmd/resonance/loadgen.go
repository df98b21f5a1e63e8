package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/resonance/internal/loadgen"
)

func loadgenCmd(_ *cli) *cobra.Command {
	cfg := &loadgen.Config{}
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive synthetic fingerprints and pulses through a running API and verify the responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := loadgen.Run(cmd.Context(), cfg)
			if stats != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "fingerprints %d, pulses %d/%d recorded, %d matched, %d convergences, %d violations in %s\n",
					stats.FingerprintsRegistered, stats.PulsesRecorded, stats.PulsesSubmitted,
					stats.PulsesMatched, stats.Convergences, len(stats.Violations), stats.Duration.Round(time.Millisecond))
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	flags.IntVar(&cfg.Fingerprints, "fingerprints", loadgen.DefaultFingerprints, "fingerprints to register")
	flags.IntVar(&cfg.Pulses, "pulses", loadgen.DefaultPulses, "pulses to record")
	flags.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*2, "concurrent workers")
	flags.DurationVar(&cfg.Timeout, "timeout", loadgen.DefaultTimeout, "HTTP request timeout")
	flags.Uint64Var(&cfg.Seed, "seed", 1, "seed for the text generator")
	flags.StringVar(&cfg.OutputFile, "output", "", "write the generated traffic to this JSON file")
	flags.StringVar(&cfg.Owner, "owner", loadgen.DefaultOwner, "owner prefix for generated fingerprints")
	return cmd
}
