package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/teleop-linksim/internal/config"
	"github.com/signalsfoundry/teleop-linksim/internal/control"
	"github.com/signalsfoundry/teleop-linksim/internal/logging"
	"github.com/signalsfoundry/teleop-linksim/internal/observability"
	"github.com/signalsfoundry/teleop-linksim/internal/teleop"
	"github.com/signalsfoundry/teleop-linksim/netem"
	"github.com/signalsfoundry/teleop-linksim/operator"
	"github.com/signalsfoundry/teleop-linksim/robot"
	"github.com/signalsfoundry/teleop-linksim/timectrl"
)

type runFlags struct {
	latency      time.Duration
	jitter       time.Duration
	packetLoss   float64
	bandwidth    string
	seed         int64
	duration     time.Duration
	tick         time.Duration
	clockMode    string
	robotID      string
	robotType    string
	operatorMode string
	metricsAddr  string
	controlAddr  string
	tracing      bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a teleoperation session over the emulated link.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load(cmd)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, cfg); err != nil {
				return err
			}
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdownTracing, log)

			reg := prometheus.NewRegistry()
			metricsSrv := control.ServeMetrics(cfg.Metrics.Addr, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log)
			defer func() {
				if metricsSrv == nil {
					return
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
			}()

			var lis net.Listener
			if cfg.Control.Addr != "" {
				lis, err = net.Listen("tcp", cfg.Control.Addr)
				if err != nil {
					return fmt.Errorf("listen on %s: %w", cfg.Control.Addr, err)
				}
			}

			report, err := run(ctx, cfg, log, lis, reg)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.DurationVar(&f.latency, "latency", 0, "one-way base latency")
	fl.DurationVar(&f.jitter, "jitter", 0, "jitter spread; defaults to 10% of latency")
	fl.Float64Var(&f.packetLoss, "packet-loss", 0, "packet loss probability in [0,1]")
	fl.StringVar(&f.bandwidth, "bandwidth", "", "bandwidth in bytes/s, or inf")
	fl.Int64Var(&f.seed, "seed", 0, "seed for reproducible loss and jitter")
	fl.DurationVar(&f.duration, "duration", 0, "session length; zero runs until interrupted")
	fl.DurationVar(&f.tick, "tick", 0, "control loop tick")
	fl.StringVar(&f.clockMode, "clock-mode", "", "realtime or accelerated")
	fl.StringVar(&f.robotID, "robot-id", "", "robot identifier")
	fl.StringVar(&f.robotType, "robot-type", "", "arm_6dof or mobile_platform")
	fl.StringVar(&f.operatorMode, "operator-mode", "", "simple, advanced or vr")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics; empty disables")
	fl.StringVar(&f.controlAddr, "control-addr", "", "gRPC address for the control server; empty disables")
	fl.BoolVar(&f.tracing, "tracing", false, "enable OpenTelemetry tracing")
	return cmd
}

// apply overrides cfg with every flag set on the command line.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fl := cmd.Flags()
	if fl.Changed("latency") {
		cfg.Link.Latency = f.latency
	}
	if fl.Changed("jitter") {
		j := f.jitter
		cfg.Link.Jitter = &j
	}
	if fl.Changed("packet-loss") {
		cfg.Link.PacketLoss = f.packetLoss
	}
	if fl.Changed("bandwidth") {
		b, err := config.ParseBandwidth(f.bandwidth)
		if err != nil {
			return fmt.Errorf("--bandwidth: %w", err)
		}
		cfg.Link.Bandwidth = b
	}
	if fl.Changed("seed") {
		s := f.seed
		cfg.Link.Seed = &s
	}
	if fl.Changed("duration") {
		cfg.Session.Duration = f.duration
	}
	if fl.Changed("tick") {
		cfg.Session.Tick = f.tick
	}
	if fl.Changed("clock-mode") {
		cfg.Session.ClockMode = f.clockMode
	}
	if fl.Changed("robot-id") {
		cfg.Session.RobotID = f.robotID
	}
	if fl.Changed("robot-type") {
		cfg.Session.RobotType = f.robotType
	}
	if fl.Changed("operator-mode") {
		cfg.Session.OperatorMode = f.operatorMode
	}
	if fl.Changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if fl.Changed("control-addr") {
		cfg.Control.Addr = f.controlAddr
	}
	if fl.Changed("tracing") {
		cfg.Tracing.Enabled = f.tracing
	}
	return nil
}

// run wires the link, robot, operator and session, serves the control surface
// on lis when non-nil, and blocks until the session ends.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, lis net.Listener, reg prometheus.Registerer) (teleop.Report, error) {
	log = logging.OrNoop(log)

	linkMetrics, err := observability.NewLinkCollector(reg)
	if err != nil {
		return teleop.Report{}, fmt.Errorf("link metrics: %w", err)
	}
	rpcMetrics, err := observability.NewControlCollector(reg)
	if err != nil {
		return teleop.Report{}, fmt.Errorf("control metrics: %w", err)
	}

	r, err := robot.New(cfg.Session.RobotID, cfg.Session.RobotType, robot.WithLogger(log))
	if err != nil {
		return teleop.Report{}, err
	}
	op := operator.New(cfg.Session.RobotID, cfg.Session.OperatorMode, operator.WithLogger(log))

	link := teleop.NewLink(
		netem.WithLogger(log),
		netem.WithRandom(cfg.Link.RandomFactory()),
		netem.WithObserver(linkMetrics),
	)
	defer link.Shutdown()
	link.SetConditions(cfg.Link.Conditions())

	stopControl := func() error { return nil }
	if lis != nil {
		ctrl := control.New(control.Config{Link: link, Collector: rpcMetrics, Logger: log})
		serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		served := make(chan error, 1)
		go func() { served <- ctrl.Serve(serveCtx, lis) }()
		stopControl = func() error {
			ctrl.Refresh()
			cancel()
			return <-served
		}
	}

	session := teleop.NewSession(op, link, r,
		teleop.WithLogger(log),
		teleop.WithScript(cfg.Session.Script),
		teleop.WithStateAgeObserver(linkMetrics),
	)
	tc := timectrl.NewTimeController(time.Now(), cfg.Session.Tick, cfg.Session.TimeMode())
	report, runErr := session.Run(ctx, tc, cfg.Session.Duration)

	if err := stopControl(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("control server: %w", err))
	}
	return report, runErr
}

func printReport(w io.Writer, r teleop.Report) {
	fmt.Fprintf(w, "session %s\n", r.SessionID)
	fmt.Fprintf(w, "  steps              %d\n", r.Steps)
	fmt.Fprintf(w, "  commands sent      %d\n", r.CommandsSent)
	fmt.Fprintf(w, "  commands applied   %d\n", r.CommandsApplied)
	fmt.Fprintf(w, "  commands rejected  %d\n", r.CommandsRejected)
	fmt.Fprintf(w, "  states sent        %d\n", r.StatesSent)
	fmt.Fprintf(w, "  states displayed   %d\n", r.StatesDisplayed)
	fmt.Fprintf(w, "  state age          %s\n", r.StateAge)
	fmt.Fprintf(w, "  commands link      %+v\n", r.Link.Commands)
	fmt.Fprintf(w, "  states link        %+v\n", r.Link.States)
}
