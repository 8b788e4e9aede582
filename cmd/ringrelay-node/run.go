package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ringrelay/internal/config"
	"ringrelay/internal/daemon"
	"ringrelay/internal/debuglog"
	"ringrelay/internal/display"
	"ringrelay/internal/metrics"
	"ringrelay/internal/network"
	"ringrelay/internal/node"
	"ringrelay/internal/pprofutil"
	"ringrelay/internal/store"
	"ringrelay/internal/upgrade"
	"ringrelay/internal/version"
)

func newRun() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the node and read commands from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath, cmd.Flags())
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runNode(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	addConfigFlags(cmd.Flags(), &cfgPath,
		"home", "private-key", "listen", "advertise", "bootstrap", "whitelist", "log-level", "debug-addr")
	return cmd
}

func runNode(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer) error {
	log, err := debuglog.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := os.MkdirAll(cfg.General.Home, 0o700); err != nil {
		return errors.Wrapf(err, "creating home %s", cfg.General.Home)
	}
	self, err := node.Load(cfg.Path(cfg.General.PrivateKey))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	met := metrics.New(reg)

	hist, err := store.New(cfg.Path(cfg.Display.History))
	if err != nil {
		return err
	}
	console := display.New(display.Options{
		Out:     stdout,
		Color:   cfg.Display.Color,
		History: hist,
		Logger:  log,
	})
	if err := console.Replay(cfg.Display.Replay); err != nil {
		log.Warn("history replay failed", zap.Error(err))
	}

	inbound := make(chan network.Inbound, cfg.Network.InboundBuffer)
	events := make(chan network.Event, cfg.Network.InboundBuffer)
	q, err := network.NewQUIC(network.Options{
		Node:            self,
		ListenAddr:      cfg.Network.ListenAddr,
		AdvertiseAddr:   cfg.Network.AdvertiseAddr,
		Bootstrap:       cfg.Network.Bootstrap,
		Whitelist:       cfg.Network.Whitelist,
		Inbound:         inbound,
		Events:          events,
		SendTimeout:     cfg.Network.SendTimeout,
		CandidateTTL:    cfg.Network.CandidateTTL,
		MaxConnsPerIP:   cfg.Network.MaxConnsPerIP,
		MaxStreamsPerIP: cfg.Network.MaxStreamsPerIP,
		MaxHops:         cfg.Network.MaxHops,
		Logger:          log,
		Metrics:         met,
	})
	if err != nil {
		return err
	}

	binary := cfg.Upgrade.Binary
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return errors.Wrap(err, "locating executable")
		}
	}
	up := upgrade.New(upgrade.Options{Port: cfg.Upgrade.Port, Logger: log})
	d, err := daemon.New(daemon.Options{
		Network:       q,
		Inbound:       inbound,
		Events:        events,
		Upgrader:      up,
		Display:       console,
		Version:       version.Version,
		BinaryPath:    binary,
		UpgradePort:   cfg.Upgrade.Port,
		SettleDelay:   cfg.Daemon.SettleDelay,
		SendTimeout:   cfg.Network.SendTimeout,
		CommandBuffer: cfg.Daemon.CommandBuffer,
		Logger:        log,
		Metrics:       met,
	})
	if err != nil {
		return err
	}

	var debug *pprofutil.Server
	if cfg.Metrics.DebugAddr != "" {
		debug, err = pprofutil.Listen(pprofutil.Options{
			Addr:        cfg.Metrics.DebugAddr,
			Pprof:       cfg.Metrics.Pprof,
			AllowPublic: cfg.Metrics.AllowPublic,
			Gatherer:    reg,
			Logger:      log,
		})
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// The network outlives the daemon so the final PeerDisconnected
	// publish still goes out. Its shutdown lingers briefly after the last write.
	netCtx, netCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer netCancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return q.Run(netCtx)
	})
	g.Go(func() error {
		defer netCancel()
		defer cancel()
		return d.Run(gctx)
	})
	if debug != nil {
		g.Go(func() error {
			return debug.Run(gctx)
		})
	}
	g.Go(func() error {
		select {
		case <-q.Ready():
			console.Noticef("READY addr=%s node_id=%s version=%s", q.Addr(), self.ID, version.String())
		case <-gctx.Done():
			return nil
		}
		r := newREPL(d.Client(), console, console.Noticef)
		return r.run(gctx, stdin)
	})
	return g.Wait()
}
