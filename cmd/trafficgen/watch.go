package main

import (
	"context"
	"flag"
	"log"
	"time"

	"trafficgen/internal/config"
	"trafficgen/internal/engine"
	"trafficgen/internal/metrics"
)

// cmdWatch generates once, then again every time the config file changes.
// A run in progress is cancelled when a newer config arrives.
func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to config file")
	metricsAddr := fs.String("metrics-addr", "", "Serve /metrics and /status on this address")
	pprof := fs.Bool("pprof", false, "Expose /debug/pprof on the metrics address")
	fs.Parse(args)

	reloader, err := config.NewReloadable(*configPath)
	if err != nil {
		return err
	}
	defer reloader.Close()

	ctx, cancel := signalContext()
	defer cancel()

	rec := metrics.New()
	var web *metrics.WebServer
	if *metricsAddr != "" {
		rec.WithProcessCollectors()
		web = metrics.NewWebServer(*metricsAddr, rec, metrics.WithPprof(*pprof))
		go func() {
			if err := web.Serve(ctx); err != nil {
				log.Printf("[watch] metrics server: %v", err)
			}
		}()
		log.Printf("[watch] metrics on http://%s/metrics", *metricsAddr)
	}

	restartCh := make(chan *config.Config, 1)
	reloader.Watch(func(old, next *config.Config) {
		select {
		case restartCh <- next:
		default:
			// Drop the stale pending config in favour of next.
			select {
			case <-restartCh:
			default:
			}
			restartCh <- next
		}
	})

	start := func(cfg *config.Config) (context.CancelFunc, <-chan error) {
		applyLogging(cfg)
		runCtx, runCancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() { errCh <- runOnce(runCtx, cfg, rec, web) }()
		return runCancel, errCh
	}

	runCancel, errCh := start(reloader.Get())
	stop := func() {
		runCancel()
		if errCh != nil {
			<-errCh
		}
	}
	for {
		select {
		case <-ctx.Done():
			stop()
			return nil
		case next := <-restartCh:
			log.Printf("[watch] config reloaded: regenerating")
			stop()
			runCancel, errCh = start(next)
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				log.Printf("[watch] generation failed: %v", err)
			}
			// Idle until the next reload or shutdown.
			errCh = nil
		}
	}
}

func runOnce(ctx context.Context, cfg *config.Config, rec *metrics.Recorder, web *metrics.WebServer) error {
	e, err := engine.New(cfg, engine.WithRecorder(rec))
	if err != nil {
		return err
	}
	res, err := e.Run(ctx)
	if web != nil && res != nil {
		n, b := res.Packets()
		st := metrics.RunStatus{
			RunID:    res.RunID,
			Finished: time.Now(),
			Captures: len(res.Artifacts),
			Packets:  n,
			Bytes:    b,
		}
		if err != nil {
			st.Err = err.Error()
		}
		web.SetStatus(st)
	}
	return err
}
