package bench

import (
	"context"
	"encoding/csv"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valetbench/internal/config"
	"valetbench/internal/dummy"
	"valetbench/internal/runner"
	"valetbench/internal/storage"
	"valetbench/internal/strategy"
)

var quiet = log.New(io.Discard)

func backend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(dummy.New(dummy.ServerConfig{}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func fileSet(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, string(rune('a'+i))+".bin")
		require.NoError(t, os.WriteFile(name, make([]byte, 1024*(i+1)), 0644))
	}
	return dir
}

func baseConfig(srv *httptest.Server, dir, out string) config.Config {
	return config.Config{
		BaseURL:        srv.URL,
		LoginPath:      "/login",
		ProxyPath:      "/user/proxy-upload",
		SASPath:        "/user/upload-sas",
		Username:       "demo",
		Password:       "1",
		Strategy:       config.StrategyProxy,
		MaxConcurrency: runner.MaxConcurrency,
		Dir:            dir,
		Out:            out,
		Timeout:        10 * time.Second,
		ObjectName:     strategy.DefaultNameTemplate,
		Transfer:       strategy.ModePut,
		Levels:         []int{1, 2},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestProxyRun(t *testing.T) {
	srv := backend(t)
	out := filepath.Join(t.TempDir(), "proxy.csv")
	cfg := baseConfig(srv, fileSet(t, 3), out)

	b, err := Prepare(context.Background(), cfg, quiet)
	require.NoError(t, err)
	assert.Equal(t, "PROXY", b.Strategy.Name())
	assert.InDelta(t, 6.0/1024, b.TotalMB(), 1e-9)

	rec, err := b.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, out, rec.ResultsPath)
	assert.Empty(t, rec.Error)
	require.Len(t, rec.Summaries, 2)
	for _, s := range rec.Summaries {
		assert.Equal(t, uint64(3), s.Emitted)
		assert.Equal(t, uint64(3), s.Success)
	}

	rows := readCSV(t, out)
	require.Len(t, rows, 1+6)
	for _, row := range rows[1:] {
		assert.Equal(t, "PROXY", row[0])
		assert.NotEmpty(t, row[6], "server cpu")
		assert.NotEmpty(t, row[7], "server memory")
	}
}

func TestValetKeyRun(t *testing.T) {
	srv := backend(t)
	out := filepath.Join(t.TempDir(), "sas.csv")
	cfg := baseConfig(srv, fileSet(t, 2), out)
	cfg.Strategy = config.StrategyValetKey
	cfg.Extended = true
	cfg.Levels = []int{2}

	b, err := Prepare(context.Background(), cfg, quiet)
	require.NoError(t, err)
	rec, err := b.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, strategy.ModePut, rec.Transfer)

	rows := readCSV(t, out)
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], 13)
	for _, row := range rows[1:] {
		assert.Equal(t, "SAS", row[0])
		assert.Equal(t, "2", row[5])
		assert.Equal(t, "0", row[8], "success code")
		assert.Empty(t, row[6], "no server metrics for direct uploads")
	}
}

func TestPrepareFailsWithoutCredential(t *testing.T) {
	srv := backend(t)
	out := filepath.Join(t.TempDir(), "never.csv")
	cfg := baseConfig(srv, fileSet(t, 1), out)
	cfg.Password = "wrong"

	_, err := Prepare(context.Background(), cfg, quiet)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire credential")
	assert.NoFileExists(t, out)
}

func TestPrepareFailsOnEmptyFileSet(t *testing.T) {
	srv := backend(t)
	cfg := baseConfig(srv, t.TempDir(), "")

	_, err := Prepare(context.Background(), cfg, quiet)

	assert.ErrorIs(t, err, runner.ErrNoFiles)
}

func TestInterruptedRunIsMarkedPartial(t *testing.T) {
	srv := backend(t)
	out := filepath.Join(t.TempDir(), "cut.csv")
	cfg := baseConfig(srv, fileSet(t, 2), out)

	b, err := Prepare(context.Background(), cfg, quiet)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec, err := b.Run(ctx, nil)

	assert.True(t, IsCanceled(err))
	assert.Equal(t, out+".partial", rec.ResultsPath)
	assert.FileExists(t, out+".partial")
	assert.NoFileExists(t, out)
	assert.NotEmpty(t, rec.Error)
}

func TestNewStrategyTransferModes(t *testing.T) {
	cfg := config.Config{BaseURL: "http://x", SASPath: "/sas", Strategy: config.StrategyValetKey, ObjectName: "{{name}}"}
	for _, mode := range []string{strategy.ModePut, strategy.ModeAzCopy, strategy.ModeSDK} {
		cfg.Transfer = mode
		s, err := NewStrategy(cfg)
		require.NoError(t, err, mode)
		v, ok := s.(*strategy.ValetKey)
		require.True(t, ok)
		assert.Equal(t, mode, v.Transfer.Mode())
	}

	_, err := NewStrategy(config.Config{Strategy: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestSaveHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	SaveHistory(path, storage.RunRecord{ID: "run-12345", Timestamp: time.Now(), Strategy: "PROXY"}, quiet)

	st, err := storage.Open(path)
	require.NoError(t, err)
	defer st.Close()
	r, err := st.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, "PROXY", r.Strategy)
}

func TestResultsPath(t *testing.T) {
	ts := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	cfg := config.Config{Strategy: config.StrategyValetKey, Transfer: strategy.ModeAzCopy}
	assert.Equal(t, "results_azcopy_20260501_093000.csv", ResultsPath(cfg, ts))

	cfg.Out = "custom.csv"
	assert.Equal(t, "custom.csv", ResultsPath(cfg, ts))
}
