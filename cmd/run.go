package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"valetbench/internal/bench"
	"valetbench/internal/cli"
	"valetbench/internal/config"
	"valetbench/internal/metrics"
	"valetbench/internal/storage"
	"valetbench/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Upload a directory at each concurrency level and record every transfer",
	Example: `  valetbench run -s proxy -d ./files -l 1,2,4,8 --username demo --password 1
  valetbench run -s valetkey --transfer azcopy -d ./files --session ABC123
  VALETBENCH_PASSWORD=secret valetbench run --tui`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

// flag name -> viper key
var runFlagKeys = map[string]string{
	"base-url":           "base_url",
	"login-path":         "login_path",
	"proxy-path":         "proxy_path",
	"sas-path":           "sas_path",
	"username":           "username",
	"password":           "password",
	"session":            "session",
	"strategy":           "strategy",
	"levels":             "levels",
	"max-concurrency":    "max_concurrency",
	"dir":                "dir",
	"out":                "out",
	"extended":           "extended",
	"timeout":            "timeout",
	"insecure":           "insecure",
	"object-name":        "object_name",
	"transfer":           "transfer",
	"azcopy-path":        "azcopy.path",
	"azcopy-concurrency": "azcopy.concurrency",
	"azcopy-block-size":  "azcopy.block_size_mb",
	"azcopy-cap-mbps":    "azcopy.cap_mbps",
	"azcopy-put-md5":     "azcopy.put_md5",
	"client-metrics":     "client_metrics",
	"metrics-addr":       "metrics_addr",
	"tui":                "tui",
	"history-db":         "history_db",
}

func init() {
	f := runCmd.Flags()
	f.StringP("base-url", "u", "http://localhost:8080", "Backend base URL")
	f.String("login-path", "/login", "Login endpoint path")
	f.String("proxy-path", "/user/proxy-upload", "Proxy upload endpoint path")
	f.String("sas-path", "/user/upload-sas", "Upload URL endpoint path")
	f.String("username", "", "Login username")
	f.String("password", "", "Login password")
	f.String("session", "", "Existing session id (skips login)")
	f.StringP("strategy", "s", config.StrategyProxy, "Upload strategy: proxy or valetkey")
	f.StringP("levels", "l", "", "Comma separated concurrency levels (default 1,2,4,6,8)")
	f.Int("max-concurrency", 30, "Upper bound applied to every level")
	f.StringP("dir", "d", ".", "Directory holding the files to upload")
	f.StringP("out", "o", "", "Results CSV path (default results_<strategy>_<timestamp>.csv)")
	f.Bool("extended", false, "Append success, client usage, server time and error columns")
	f.Duration("timeout", 30*time.Minute, "Per transfer timeout")
	f.Bool("insecure", false, "Skip TLS verification")
	f.String("object-name", "{{name}}", "Object name template for valet-key uploads")
	f.String("transfer", "put", "Valet-key transfer mode: put, azcopy or sdk")
	f.String("azcopy-path", "azcopy", "azcopy executable")
	f.Int("azcopy-concurrency", 32, "azcopy/sdk parallelism")
	f.Int("azcopy-block-size", 8, "azcopy/sdk block size in MB")
	f.Int("azcopy-cap-mbps", 0, "azcopy bandwidth cap in Mbps (0 = none)")
	f.Bool("azcopy-put-md5", false, "Ask azcopy to store MD5 hashes")
	f.Bool("client-metrics", true, "Sample client CPU and memory around each transfer")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	f.Bool("tui", false, "Show the interactive dashboard")
	f.String("history-db", "", "Run history database (default $HOME/.valetbench/history.db, \"off\" disables)")

	for name, key := range runFlagKeys {
		viper.BindPFlag(key, f.Lookup(name))
	}
}

func runBench(cmd *cobra.Command, _ []string) error {
	logger := newLogger(os.Stderr)

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	if cfg.LevelsFallback {
		logger.Warn("levels empty or invalid, using defaults", "levels", cfg.Levels)
	}
	cfg.Out = bench.ResultsPath(cfg, time.Now())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TUI {
		logFile, err := os.Create(cfg.Out + ".log")
		if err != nil {
			return fmt.Errorf("create log file: %w", err)
		}
		defer logFile.Close()
		logger = newLogger(logFile)
	}

	b, err := bench.Prepare(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr, logger)
		defer srv.Close()
	}

	header := cli.Header{
		Strategy: b.Strategy.Name(),
		BaseURL:  cfg.BaseURL,
		Levels:   cfg.Levels,
		Files:    len(b.Files),
		TotalMB:  b.TotalMB(),
		Results:  cfg.Out,
	}
	if cfg.Strategy == config.StrategyValetKey {
		header.Transfer = cfg.Transfer
	}

	var rec storage.RunRecord
	printer := cli.NewPrinter(os.Stdout)
	if cfg.TUI {
		rec, err = tui.Run(ctx, b, header)
	} else {
		printer.PrintHeader(header)
		rec, err = b.Run(ctx, printer)
	}
	if rec.ID != "" {
		printer.PrintSummary(rec)
		bench.SaveHistory(cfg.HistoryDB, rec, logger)
	}

	if err != nil {
		if bench.IsCanceled(err) {
			logger.Warn("run interrupted", "results", rec.ResultsPath)
		}
		return err
	}
	logger.Info("run complete", "id", rec.ID, "results", rec.ResultsPath)
	return nil
}
