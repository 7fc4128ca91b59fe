package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/teleop-linksim/internal/analysis"
	"github.com/signalsfoundry/teleop-linksim/internal/observability"
)

func newSweepCmd(g *globalFlags) *cobra.Command {
	var (
		planPath string
		probes   int
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Probe a set of link conditions and report delivery statistics.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if planPath == "" {
				return errors.New("--plan is required")
			}
			cfg, log, err := g.load(cmd)
			if err != nil {
				return err
			}
			plan, err := analysis.LoadPlan(planPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("probes") {
				plan.Probes = probes
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.ShutdownWithTimeout(cmd.Context(), shutdownTracing, log)

			results, err := analysis.Sweeper{Log: log}.Run(ctx, plan)
			printResults(cmd.OutOrStdout(), results)
			return err
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "YAML sweep plan")
	cmd.Flags().IntVar(&probes, "probes", 0, "override the plan's probe count")
	return cmd
}

func printResults(w io.Writer, results []analysis.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tLATENCY\tJITTER\tLOSS\tBANDWIDTH\tSENT\tRECEIVED\tDELIVERED\tREORDERED\tP50\tP95\tP99")
	for _, r := range results {
		bandwidth := "inf"
		if !math.IsInf(r.Conditions.Bandwidth, 1) {
			bandwidth = fmt.Sprintf("%.0f", r.Conditions.Bandwidth)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%s\t%d\t%d\t%.1f%%\t%d\t%s\t%s\t%s\n",
			r.Case,
			r.Conditions.Latency,
			r.Conditions.Jitter,
			r.Conditions.Loss,
			bandwidth,
			r.Sent,
			r.Received,
			100*r.DeliveredFraction(),
			r.Reordered,
			r.Delay.P50,
			r.Delay.P95,
			r.Delay.P99,
		)
	}
	_ = tw.Flush()
}
