// Package resources samples whole-system CPU and memory usage.
package resources

import (
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"valetbench/internal/runner"
)

const bytesPerMB = 1024 * 1024

// System reads system-wide CPU and used memory. CPU is measured since the
// previous call, so the first reading after start-up covers boot time.
type System struct{}

func NewSystem() *System {
	// prime the CPU counters
	cpu.Percent(0, false)
	return &System{}
}

func (*System) Snapshot() (runner.ClientUsage, error) {
	pct, err := cpu.Percent(0, false)
	if err != nil {
		return runner.ClientUsage{}, err
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return runner.ClientUsage{}, err
	}
	u := runner.ClientUsage{MemoryMB: float64(vm.Used) / bytesPerMB}
	if len(pct) > 0 {
		u.CPUPercent = pct[0]
	}
	return u, nil
}

// Process reads the CPU and resident memory of one process.
type Process struct {
	mu sync.Mutex
	p  *process.Process
}

// NewProcess samples the process with the given pid.
func NewProcess(pid int) (*Process, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, err
	}
	// prime the CPU counters
	p.Percent(0)
	return &Process{p: p}, nil
}

func (s *Process) Snapshot() (runner.ClientUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pct, err := s.p.Percent(0)
	if err != nil {
		return runner.ClientUsage{}, err
	}
	mi, err := s.p.MemoryInfo()
	if err != nil {
		return runner.ClientUsage{}, err
	}
	return runner.ClientUsage{CPUPercent: pct, MemoryMB: float64(mi.RSS) / bytesPerMB}, nil
}

var (
	_ runner.ResourceSampler = &System{}
	_ runner.ResourceSampler = &Process{}
)
