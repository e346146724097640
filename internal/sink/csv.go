// Package sink writes samples to durable storage.
package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"valetbench/internal/runner"
)

// Header is the stable column set shared by every strategy.
var Header = []string{
	"Type", "TotalTime_s", "TotalBytes_MB", "Throughput_MBps",
	"File", "Concurrency", "ServerCPU_pct", "ServerMemory_MB",
}

// ExtendedHeader is appended after Header when extended output is on.
var ExtendedHeader = []string{
	"Success", "ClientCPU_pct", "ClientMemory_MB", "ServerTime_s", "Error",
}

// CSV writes one row per sample.
type CSV struct {
	w        *csv.Writer
	c        io.Closer
	extended bool
}

// NewCSV writes the header to w. Closing the sink closes w when it is an
// io.Closer.
func NewCSV(w io.Writer, extended bool) (*CSV, error) {
	s := &CSV{w: csv.NewWriter(w), extended: extended}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	header := Header
	if extended {
		header = append(append([]string(nil), Header...), ExtendedHeader...)
	}
	if err := s.w.Write(header); err != nil {
		return nil, err
	}
	s.w.Flush()
	return s, s.w.Error()
}

// CreateCSV creates path (and its directory) and returns a sink writing to it.
func CreateCSV(path string, extended bool) (*CSV, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s, err := NewCSV(f, extended)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// DefaultPath mirrors the results_<strategy>_<timestamp>.csv naming.
func DefaultPath(strategy string, t time.Time) string {
	return fmt.Sprintf("results_%s_%s.csv", strategy, t.Format("20060102_150405"))
}

func (s *CSV) Write(smp runner.Sample) error {
	return s.w.Write(Record(smp, s.extended))
}

func (s *CSV) Flush() error {
	s.w.Flush()
	return s.w.Error()
}

func (s *CSV) Close() error {
	err := s.Flush()
	if s.c != nil {
		if cerr := s.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Record renders one sample as a CSV row.
func Record(smp runner.Sample, extended bool) []string {
	var serverCPU, serverMem, serverTime string
	if smp.Server != nil {
		serverCPU = optFloat(smp.Server.CPUPercent)
		serverMem = optFloat(smp.Server.MemoryMB)
		serverTime = optFloat(smp.Server.TimeSec)
	}
	record := []string{
		smp.Strategy,
		formatFloat(smp.ElapsedSec),
		formatFloat(smp.SizeMB),
		formatFloat(smp.ThroughputMBps),
		smp.File,
		strconv.Itoa(smp.Concurrency),
		serverCPU,
		serverMem,
	}
	if !extended {
		return record
	}

	var clientCPU, clientMem string
	if smp.Client != nil {
		clientCPU = formatFloat(smp.Client.CPUPercent)
		clientMem = formatFloat(smp.Client.MemoryMB)
	}
	return append(record,
		strconv.Itoa(smp.Code),
		clientCPU,
		clientMem,
		serverTime,
		smp.Error,
	)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ runner.Sink = &CSV{}
