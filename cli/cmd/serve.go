package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dife-bioinformatics/mekewe/api"
	"github.com/dife-bioinformatics/mekewe/config"
	"github.com/dife-bioinformatics/mekewe/engine"
	"github.com/dife-bioinformatics/mekewe/engine/proc"
	"github.com/dife-bioinformatics/mekewe/log"
	"github.com/dife-bioinformatics/mekewe/metrics"
	"github.com/dife-bioinformatics/mekewe/state"
	"github.com/dife-bioinformatics/mekewe/store"
	"github.com/dife-bioinformatics/mekewe/store/memstore"
	"github.com/dife-bioinformatics/mekewe/store/redisstore"
	"github.com/dife-bioinformatics/mekewe/worker"
)

// ServeCommand returns the serve command: the HTTP API plus the
// background maintenance worker in one process.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the pipeline orchestration service (HTTP API + maintenance worker)",
		Flags: []cli.Flag{
			ConfigFlag,
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Override the HTTP bind address",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("config: %v", err), 1)
	}
	if addr := c.String("listen"); addr != "" {
		cfg.ListenAddr = addr
	}

	logger := log.NewLogger("mekewe")

	st, err := openStore(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("state store: %v", err), 1)
	}
	defer func() { _ = st.Close() }()

	if err := os.MkdirAll(cfg.PipelineRunsCacheDir, 0o755); err != nil {
		return cli.Exit(fmt.Sprintf("cache dir: %v", err), 1)
	}

	mgr := state.NewManager(st, cfg, log.NewLogger("state"))
	eng := proc.New(proc.Config{Command: cfg.EngineCommand, Args: cfg.EngineArgs})
	adapter := engine.NewAdapter(mgr, eng, log.NewLogger("engine"))
	collector := metrics.NewCollector()
	w := worker.New(mgr, adapter, cfg, log.NewLogger("worker"), collector)
	server := api.NewServer(mgr, cfg, log.NewLogger("api"), w)

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- w.Start(ctx)
	}()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.ListenAndServe()
	}()

	var runErr error
	workerFinished := false
	select {
	case <-ctx.Done():
	case err := <-workerDone:
		workerFinished = true
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("worker terminated: %w", err)
		}
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", map[string]any{
			"error": err.Error(),
		})
	}
	if !workerFinished {
		<-workerDone
	}

	if runErr != nil {
		return cli.Exit(runErr.Error(), 1)
	}
	logger.Info("service stopped", nil)
	return nil
}

// openStore selects the redis-backed store when a URL is configured and
// the in-process store otherwise (dev mode).
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.RedisURL == "" {
		return memstore.New(), nil
	}
	return redisstore.New(cfg.RedisURL)
}
