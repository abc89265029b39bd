// Command statemesh runs one gossiping key/value sidecar instance: an
// app-facing agent server, a peer-facing connection server, and the
// publisher/receiver loops that keep them converging with the fleet.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"statemesh/core"
	"statemesh/httpapi"
	"statemesh/internal/config"
	"statemesh/internal/logging"
	"statemesh/internal/xerrors"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "statemesh",
		Short: "A gossiping, eventually-consistent key/value sidecar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	log := logging.For("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		return xerrors.Wrap(err, fmt.Sprintf("load config %q", configPath))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := core.NewDefaultEngine(cfg.Spec.State.DataSeeder)
	engine.DefaultTTL = cfg.Spec.State.TTL
	if cfg.Spec.State.PurgeInterval > 0 {
		engine.PurgeInterval = time.Duration(cfg.Spec.State.PurgeInterval) * time.Millisecond
	}
	if err := engine.Init(ctx); err != nil {
		return xerrors.Wrap(err, "init state engine")
	}

	peerProvider := cfg.Spec.Connection.PeerProvider
	if peerProvider == nil {
		peerProvider = &core.StaticProvider{}
	}
	if err := peerProvider.Init(ctx); err != nil {
		return xerrors.Wrap(err, "init peer provider")
	}

	gossip := core.NewGossip(engine, peerProvider, orDefault(cfg.Spec.Connection.Port, 4097))
	gossip.TargetPort = cfg.Spec.Connection.TargetPort
	if cfg.Spec.Connection.PushInterval > 0 {
		gossip.PushInterval = time.Duration(cfg.Spec.Connection.PushInterval) * time.Millisecond
	}
	if cfg.Spec.Connection.PullInterval > 0 {
		gossip.PullInterval = time.Duration(cfg.Spec.Connection.PullInterval) * time.Millisecond
	}
	if cfg.Spec.Connection.R0 > 0 {
		gossip.FanOut = cfg.Spec.Connection.R0
	}
	if cfg.Spec.Connection.Timeout > 0 {
		gossip.PeerTimeout = time.Duration(cfg.Spec.Connection.Timeout) * time.Millisecond
	}
	go gossip.Run(ctx)

	agentAddr := fmt.Sprintf("0.0.0.0:%d", orDefault(cfg.Spec.Agent.Port, 3097))
	connAddr := fmt.Sprintf("0.0.0.0:%d", orDefault(cfg.Spec.Connection.Port, 4097))

	agentServer := httpapi.NewAgentServer(engine, agentAddr)
	connServer := httpapi.NewConnectionServer(engine, connAddr)

	serveErr := make(chan error, 2)
	go func() {
		log.Infof("agent server listening on %s", agentAddr)
		serveErr <- agentServer.ListenAndServe()
	}()
	go func() {
		log.Infof("connection server listening on %s", connAddr)
		serveErr <- connServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		_ = agentServer.Shutdown(context.Background())
		_ = connServer.Shutdown(context.Background())
		return nil
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}
}

func orDefault(port uint16, def uint16) uint16 {
	if port == 0 {
		return def
	}
	return port
}
