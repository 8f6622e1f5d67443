package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	leveldb "github.com/ipfs/go-ds-leveldb"
	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"github.com/votqanh/go-wikimediator/mediator"
	"github.com/votqanh/go-wikimediator/metrics"
	"github.com/votqanh/go-wikimediator/pathfind"
	"github.com/votqanh/go-wikimediator/server"
	"github.com/votqanh/go-wikimediator/statestore"
	"github.com/votqanh/go-wikimediator/wikisource"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Serve mediator requests until stopped",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML config file, created with defaults if missing",
			Value:   "wikimediator.yaml",
		},
		&cli.StringFlag{
			Name:  "listen",
			Usage: "Address to serve requests on, overrides the config file",
		},
		&cli.IntFlag{
			Name:  "max-clients",
			Usage: "Number of connections served at once, overrides the config file",
		},
		&cli.StringFlag{
			Name:  "state-dir",
			Usage: "Directory of the state datastore, overrides the config file",
		},
		&cli.StringFlag{
			Name:  "metrics-listen",
			Usage: "Address to serve metrics on, overrides the config file",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level, overrides the config file",
		},
	},
	Action: serveAction,
}

func serveAction(cctx *cli.Context) error {
	cfg, err := loadConfig(cctx.String("config"))
	if err != nil {
		return err
	}
	if cctx.IsSet("listen") {
		cfg.Listen = cctx.String("listen")
	}
	if cctx.IsSet("max-clients") {
		cfg.MaxClients = cctx.Int("max-clients")
	}
	if cctx.IsSet("state-dir") {
		cfg.StateDir = cctx.String("state-dir")
	}
	if cctx.IsSet("metrics-listen") {
		cfg.MetricsListen = cctx.String("metrics-listen")
	}
	if cctx.IsSet("log-level") {
		cfg.LogLevel = cctx.String("log-level")
	}

	lvl, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.SetAllLoggers(lvl)

	src, err := wikisource.New(cfg.Source.APIURL,
		wikisource.WithUserAgent(cfg.Source.UserAgent),
		wikisource.WithRetry(cfg.Source.RetryMax, time.Second, 30*time.Second),
		wikisource.WithLinkLimit(cfg.Source.LinkLimit))
	if err != nil {
		return fmt.Errorf("cannot create content source: %w", err)
	}

	var met *metrics.Metrics
	var metricsServer *metrics.Server
	if cfg.MetricsListen != "" {
		met = metrics.New(nil)
		metricsServer = metrics.NewServer(cfg.MetricsListen, nil)
		if _, err = metricsServer.Start(); err != nil {
			return fmt.Errorf("cannot start metrics server: %w", err)
		}
	}

	med, err := mediator.New(src,
		mediator.WithCapacity(cfg.Cache.Capacity),
		mediator.WithTTL(cfg.Cache.TTL),
		mediator.WithFetchTimeout(cfg.Source.FetchTimeout),
		mediator.WithMetrics(met),
		mediator.WithFinderOptions(
			pathfind.WithMaxBranches(cfg.PathFinder.MaxBranches),
			pathfind.WithMaxDepth(cfg.PathFinder.MaxDepth)))
	if err != nil {
		return err
	}

	serverOpts := []server.Option{server.WithMaxClients(cfg.MaxClients)}
	var ds *leveldb.Datastore
	if cfg.StateDir != "" {
		ds, err = leveldb.NewDatastore(cfg.StateDir, nil)
		if err != nil {
			return fmt.Errorf("cannot open state datastore: %w", err)
		}
		serverOpts = append(serverOpts, server.WithDatastore(ds))
	}

	s, err := server.New(cfg.Listen, med, serverOpts...)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var errs error
	select {
	case <-s.Done():
		log.Info("Stopped by request")
	case sig := <-sigCh:
		log.Infow("Received signal, shutting down", "signal", sig.String())
		if ds != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err = statestore.Save(ctx, ds, med.State()); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("cannot save state: %w", err))
			}
			cancel()
		}
	case err = <-errCh:
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if err = s.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err = metricsServer.Close(ctx); err != nil {
			errs = multierror.Append(errs, err)
		}
		cancel()
	}
	if ds != nil {
		if err = ds.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}
