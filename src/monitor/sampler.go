package monitor

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// NewSystemSampler returns the best sampler for the current platform.
// On Linux it reads /proc; elsewhere it falls back to Go runtime stats,
// which only approximate process-level memory usage.
func NewSystemSampler() Sampler {
	if runtime.GOOS == "linux" {
		return &procSampler{}
	}
	return &runtimeSampler{}
}

// procSampler derives utilization from /proc/meminfo and /proc/stat.
// CPU usage is computed from the delta between consecutive reads, so the
// first Read reports 0% CPU.
type procSampler struct {
	mu        sync.Mutex
	prevIdle  uint64
	prevTotal uint64
	hasPrev   bool
}

func (s *procSampler) Read() (float64, float64, error) {
	memPct, err := readMemInfo("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}

	idle, total, err := readCPUStat("/proc/stat")
	if err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var cpuPct float64
	if s.hasPrev && total > s.prevTotal {
		deltaTotal := total - s.prevTotal
		deltaIdle := idle - s.prevIdle
		cpuPct = 100.0 * float64(deltaTotal-deltaIdle) / float64(deltaTotal)
	}
	s.prevIdle = idle
	s.prevTotal = total
	s.hasPrev = true

	return memPct, cpuPct, nil
}

func readMemInfo(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open meminfo: %w", err)
	}
	defer f.Close()

	var total, available uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = value
		case "MemAvailable:":
			available = value
		}
		if total > 0 && available > 0 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan meminfo: %w", err)
	}
	if total == 0 {
		return 0, fmt.Errorf("meminfo missing MemTotal")
	}

	return 100.0 * float64(total-available) / float64(total), nil
}

func readCPUStat(path string) (idle, total uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open cpu stat: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, 0, fmt.Errorf("cpu stat is empty")
	}

	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected cpu stat format: %q", scanner.Text())
	}

	for i, field := range fields[1:] {
		value, parseErr := strconv.ParseUint(field, 10, 64)
		if parseErr != nil {
			return 0, 0, fmt.Errorf("failed to parse cpu stat field %d: %w", i, parseErr)
		}
		total += value
		// idle + iowait
		if i == 3 || i == 4 {
			idle += value
		}
	}

	return idle, total, nil
}

// runtimeSampler approximates memory pressure from Go runtime heap stats.
// It cannot observe system-wide CPU, so CPU is always reported as 0.
type runtimeSampler struct{}

func (s *runtimeSampler) Read() (float64, float64, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	if stats.Sys == 0 {
		return 0, 0, fmt.Errorf("runtime reported zero system memory")
	}

	memPct := 100.0 * float64(stats.HeapAlloc) / float64(stats.Sys)
	return memPct, 0, nil
}
