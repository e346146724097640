// Package bench wires configuration, authentication, strategy, sink and
// history into one benchmark run.
package bench

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"valetbench/internal/auth"
	"valetbench/internal/config"
	"valetbench/internal/resources"
	"valetbench/internal/runner"
	"valetbench/internal/sink"
	"valetbench/internal/storage"
	"valetbench/internal/strategy"
)

// LoginTimeout bounds the single login call.
const LoginTimeout = 30 * time.Second

// Bench is a prepared run: files are loaded and the credential acquired.
type Bench struct {
	ID       string
	Config   config.Config
	Files    []runner.FileRef
	Strategy runner.Strategy

	cred runner.Credential
	log  *log.Logger
}

// Prepare performs every fatal step that must succeed before the first
// sample: loading the file set, building the strategy and logging in.
func Prepare(ctx context.Context, cfg config.Config, logger *log.Logger) (*Bench, error) {
	files, err := runner.LoadFiles(cfg.Dir)
	if err != nil {
		return nil, err
	}
	strat, err := NewStrategy(cfg)
	if err != nil {
		return nil, err
	}

	loginCtx, cancel := context.WithTimeout(ctx, LoginTimeout)
	defer cancel()
	cred, err := auth.Acquire(loginCtx, strategy.NewHTTPClient(LoginTimeout, cfg.Insecure), auth.Options{
		BaseURL:   cfg.BaseURL,
		LoginPath: cfg.LoginPath,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Session:   cfg.Session,
	})
	if err != nil {
		return nil, fmt.Errorf("acquire credential: %w", err)
	}
	logger.Info("credential acquired", "user", cfg.Username, "files", len(files))

	return &Bench{
		ID:       uuid.NewString(),
		Config:   cfg,
		Files:    files,
		Strategy: strat,
		cred:     cred,
		log:      logger,
	}, nil
}

// NewStrategy builds the configured upload strategy.
func NewStrategy(cfg config.Config) (runner.Strategy, error) {
	client := strategy.NewHTTPClient(cfg.Timeout, cfg.Insecure)
	switch cfg.Strategy {
	case config.StrategyProxy:
		u, err := url.JoinPath(cfg.BaseURL, cfg.ProxyPath)
		if err != nil {
			return nil, fmt.Errorf("proxy url: %w", err)
		}
		return strategy.NewProxy(client, u), nil

	case config.StrategyValetKey:
		u, err := url.JoinPath(cfg.BaseURL, cfg.SASPath)
		if err != nil {
			return nil, fmt.Errorf("sas url: %w", err)
		}
		names, err := strategy.NewNameTemplate(cfg.ObjectName)
		if err != nil {
			return nil, err
		}
		var t strategy.Transferer
		switch cfg.Transfer {
		case strategy.ModeAzCopy:
			t = &strategy.AzCopy{
				Path:        cfg.AzCopy.Path,
				Concurrency: cfg.AzCopy.Concurrency,
				BlockSizeMB: cfg.AzCopy.BlockSizeMB,
				CapMbps:     cfg.AzCopy.CapMbps,
				PutMD5:      cfg.AzCopy.PutMD5,
			}
		case strategy.ModeSDK:
			t = strategy.SDKTransfer{
				BlockSizeMB: cfg.AzCopy.BlockSizeMB,
				Parallelism: cfg.AzCopy.Concurrency,
			}
		default:
			t = strategy.PutTransfer{Client: client}
		}
		return strategy.NewValetKey(&strategy.SASRequester{Client: client, URL: u}, t, names), nil
	}
	return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
}

// TotalMB is the size of the file set, uploaded once per level.
func (b *Bench) TotalMB() float64 {
	var n int64
	for _, f := range b.Files {
		n += f.Size
	}
	return float64(n) / (1024 * 1024)
}

// ResultsPath is where the CSV of a run configured by cfg and started at t
// is written.
func ResultsPath(cfg config.Config, t time.Time) string {
	if cfg.Out != "" {
		return cfg.Out
	}
	return sink.DefaultPath(cfg.Label(), t)
}

// Run executes every level and returns the run record. When the run fails
// after the result file was created, the file is renamed with a .partial
// suffix so it is never mistaken for a complete result set.
func (b *Bench) Run(ctx context.Context, observer runner.Observer) (storage.RunRecord, error) {
	rec := storage.RunRecord{
		ID:        b.ID,
		Timestamp: time.Now(),
		Strategy:  b.Strategy.Name(),
		BaseURL:   b.Config.BaseURL,
		Levels:    b.Config.Levels,
		Files:     len(b.Files),
	}
	if b.Config.Strategy == config.StrategyValetKey {
		rec.Transfer = b.Config.Transfer
	}
	rec.TotalMB = b.TotalMB()

	path := ResultsPath(b.Config, rec.Timestamp)
	out, err := sink.CreateCSV(path, b.Config.Extended)
	if err != nil {
		return rec, fmt.Errorf("create results file: %w", err)
	}

	var sampler runner.ResourceSampler
	if b.Config.ClientMetrics {
		sampler = resources.NewSystem()
	}
	exec := runner.NewExecutor(b.Strategy, b.cred, sampler)
	orch := runner.NewOrchestrator(exec, runner.Plan{Levels: b.Config.Levels, Files: b.Files}, out, b.log, observer)

	summaries, runErr := orch.Run(ctx)
	rec.Summaries = summaries
	rec.Duration = time.Since(rec.Timestamp)

	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close results file: %w", err)
	}
	if runErr != nil {
		partial := path + ".partial"
		if err := os.Rename(path, partial); err == nil {
			path = partial
		}
		rec.Error = runErr.Error()
	}
	rec.ResultsPath = path
	return rec, runErr
}

// SaveHistory stores rec in the history database at path. Failures are
// logged, never returned: history is a convenience, not a result.
func SaveHistory(path string, rec storage.RunRecord, logger *log.Logger) {
	if path == "off" || path == "none" {
		return
	}
	if path == "" {
		p, err := storage.DefaultPath()
		if err != nil {
			logger.Warn("history disabled", "err", err)
			return
		}
		path = p
	}
	st, err := storage.Open(path)
	if err != nil {
		logger.Warn("could not open history", "path", path, "err", err)
		return
	}
	defer st.Close()
	if err := st.Save(rec); err != nil {
		logger.Warn("could not save run to history", "err", err)
		return
	}
	logger.Debug("run saved to history", "id", rec.ID, "path", path)
}

// IsCanceled reports whether err comes from an interrupted run.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
