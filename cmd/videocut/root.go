package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/videocut/config"
	"github.com/bnema/videocut/internal/adapter/converter/ffmpeg"
	"github.com/bnema/videocut/internal/adapter/fetch"
	httpadapter "github.com/bnema/videocut/internal/adapter/http"
	"github.com/bnema/videocut/internal/adapter/storage/jsonfile"
	"github.com/bnema/videocut/internal/adapter/storage/public"
	sqlitestore "github.com/bnema/videocut/internal/adapter/storage/sqlite"
	"github.com/bnema/videocut/internal/port"
	"github.com/bnema/videocut/internal/service"
	"github.com/spf13/cobra"
)

// workerGrace is how long a worker child may outlive the job timeout
// before the parent kills it.
const workerGrace = time.Minute

type flags struct {
	port    int
	dataDir string
}

func newRootCmd() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:           "videocut",
		Short:         "Asynchronous video edit jobs over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVar(&f.port, "port", 0, "listen port (overrides PORT)")
	root.PersistentFlags().StringVar(&f.dataDir, "data-dir", "", "data directory (overrides DATA_DIR)")

	root.AddCommand(
		newServeCmd(&f),
		newWorkerCmd(&f),
		newTokenCmd(&f),
		newReapCmd(&f),
	)
	return root
}

// loadConfig reads the environment and applies command line overrides.
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.port != 0 {
		cfg.Port = f.port
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	// Worker children and ffmpeg list files must not depend on the cwd.
	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = dataDir
	return cfg, nil
}

type dirs struct {
	work   string
	public string
}

func prepareDirs(cfg *config.Config) (dirs, error) {
	d := dirs{
		work:   filepath.Join(cfg.DataDir, "work"),
		public: filepath.Join(cfg.DataDir, "public"),
	}
	for _, dir := range []string{cfg.DataDir, d.work, d.public} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return dirs{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return d, nil
}

type closableStore interface {
	port.JobStore
	Close() error
}

func openStore(cfg *config.Config) (closableStore, error) {
	switch cfg.Store {
	case config.StoreJSON:
		s, err := jsonfile.NewStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return nopCloser{s}, nil
	default:
		s, err := sqlitestore.NewStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

type nopCloser struct {
	port.JobStore
}

func (nopCloser) Close() error { return nil }

// newExecutor wires the provider adapters. The server and the worker child
// build the same one so both runners behave alike.
func newExecutor(cfg *config.Config, d dirs) *service.Executor {
	toolkit := service.NewToolkit(
		fetch.NewFetcher(d.work, int64(cfg.MaxUploadSizeMB)<<20),
		ffmpeg.NewConverter(d.work),
		public.NewStore(d.public, httpadapter.PublicPrefix),
	)
	return service.NewExecutor(toolkit, cfg.StepTimeout, cfg.JobTimeout)
}

// storeActivity treats every unfinished job as live. It is used when no
// coordinator runs in this process.
type storeActivity struct {
	store port.JobStore
}

func (a storeActivity) Active(jobID string) bool {
	job, err := a.store.Get(context.Background(), jobID)
	if err != nil {
		return false
	}
	return !job.Status.Terminal()
}
