package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/resonance/internal/app"
	"github.com/okian/resonance/internal/domain/convergence"
	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/internal/domain/registry"
)

func registerCmd(c *cli) *cobra.Command {
	var (
		owner    string
		tags     []string
		charge   string
		source   string
		priority string
		category string
	)
	cmd := &cobra.Command{
		Use:   "register <intent text...>",
		Short: "Register a fingerprint",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := model.RegisterOptions{
				Tags:     tags,
				Source:   source,
				Priority: priority,
				Category: category,
			}
			if cmd.Flags().Changed("charge") {
				v := model.ParseCharge(charge)
				opts.Charge = &v
			}
			intent := strings.Join(args, " ")
			return c.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				fp, err := svc.Register(ctx, intent, owner, opts)
				if err != nil {
					return err
				}
				return c.printer(cmd).fingerprint(&fp)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner of the fingerprint")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag, repeatable or comma separated")
	cmd.Flags().StringVar(&charge, "charge", "", "charge in [0,1], default 0.7")
	cmd.Flags().StringVar(&source, "source", "", "metadata source")
	cmd.Flags().StringVar(&priority, "priority", "", "metadata priority")
	cmd.Flags().StringVar(&category, "category", "", "metadata category")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func archiveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <fingerprint id>",
		Short: "Archive a fingerprint so it stops taking part in comparisons",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				ok, err := svc.Archive(ctx, args[0])
				if err != nil {
					return err
				}
				return c.printer(cmd).archived(args[0], ok)
			})
		},
	}
}

func listCmd(c *cli) *cobra.Command {
	var f model.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fingerprints, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				fps, err := svc.Fingerprints(ctx, f)
				if err != nil {
					return err
				}
				return c.printer(cmd).fingerprints(fps)
			})
		},
	}
	cmd.Flags().StringVar(&f.Owner, "owner", "", "only this owner")
	cmd.Flags().StringSliceVar(&f.Tags, "tag", nil, "require tag, repeatable")
	cmd.Flags().BoolVar(&f.ActiveOnly, "active", false, "hide archived fingerprints")
	return cmd
}

func showCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a fingerprint or a comparison record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return c.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				if strings.HasPrefix(id, registry.PulsePrefix) {
					cmp, err := svc.Comparison(ctx, id)
					if err != nil {
						return err
					}
					return c.printer(cmd).comparison(&cmp)
				}
				fp, err := svc.Fingerprint(ctx, id)
				if err != nil {
					return err
				}
				return c.printer(cmd).fingerprint(&fp)
			})
		},
	}
}

func pulseCmd(c *cli) *cobra.Command {
	var meta model.RecordMeta
	cmd := &cobra.Command{
		Use:   "pulse <text...>",
		Short: "Record text against every active fingerprint",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return c.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				cmp, err := svc.Record(ctx, text, meta)
				if err != nil {
					return err
				}
				return c.printer(cmd).comparison(&cmp)
			})
		},
	}
	cmd.Flags().StringVar(&meta.SourceLabel, "source", "", "source label, default direct")
	cmd.Flags().StringVar(&meta.InputType, "type", "", "input type, default text")
	return cmd
}

func convergencesCmd(c *cli) *cobra.Command {
	var (
		minStrength float64
		minMatches  int
		since       string
	)
	cmd := &cobra.Command{
		Use:   "convergences",
		Short: "List records where several fingerprints resonated together",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var sinceTS time.Time
			if since != "" {
				ts, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				sinceTS = ts
			}
			if minStrength < 0 || minStrength > 1 {
				return fmt.Errorf("invalid --min-strength %v: want a value within [0,1]", minStrength)
			}
			if minMatches < 1 {
				return fmt.Errorf("invalid --min-matches %d: want a positive count", minMatches)
			}
			return c.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				crit := svc.ConvergenceDefaults()
				if cmd.Flags().Changed("min-strength") {
					crit.MinStrength = minStrength
				}
				if cmd.Flags().Changed("min-matches") {
					crit.MinMatches = minMatches
				}
				crit.Since = sinceTS
				recs, err := svc.Convergences(ctx, crit)
				if err != nil {
					return err
				}
				return c.printer(cmd).comparisons(recs)
			})
		},
	}
	cmd.Flags().Float64Var(&minStrength, "min-strength", convergence.DefaultMinStrength, "minimum strength per match; the configured value when unset")
	cmd.Flags().IntVar(&minMatches, "min-matches", convergence.DefaultMinMatches, "minimum matching fingerprints; the configured value when unset")
	cmd.Flags().StringVar(&since, "since", "", "RFC3339 time or a duration such as 24h")
	return cmd
}

// parseSince accepts an RFC3339 timestamp or a look-back duration.
func parseSince(raw string, now time.Time) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want RFC3339 or a duration", raw)
	}
	return now.Add(-d), nil
}
