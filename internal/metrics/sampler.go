package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessSample holds CPU and memory figures for the running script.
type ProcessSample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// SampleProcess reads a point-in-time sample for pid.
func SampleProcess(pid int) (*ProcessSample, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to create process handle: %w", err)
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory info: %w", err)
	}
	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		slog.Debug("Failed to get CPU percent", "pid", pid, "error", err)
		cpuPercent = 0
	}
	numThreads, err := proc.NumThreads()
	if err != nil {
		slog.Debug("Failed to get thread count", "pid", pid, "error", err)
		numThreads = 0
	}
	s := &ProcessSample{
		PID:        int32(pid),
		CPUPercent: cpuPercent,
		MemoryMB:   float64(memInfo.RSS) / 1024 / 1024,
		MemoryRSS:  memInfo.RSS,
		MemoryVMS:  memInfo.VMS,
		NumThreads: numThreads,
		Timestamp:  time.Now(),
	}
	if runtime.GOOS != "windows" {
		if n, err := proc.NumFDs(); err == nil {
			s.NumFDs = n
		}
	}
	return s, nil
}

// SamplerConfig holds configuration for periodic sampling of the script.
type SamplerConfig struct {
	Interval   time.Duration
	MaxHistory int
}

// Sampler periodically samples the active script process, exports the
// figures as gauges and keeps a bounded history across restarts.
type Sampler struct {
	interval time.Duration
	pid      func() int

	mu       sync.RWMutex
	ring     []ProcessSample
	startIdx int
	count    int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cpuPercent *prometheus.GaugeVec
	memoryMB   *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
	numFDs     *prometheus.GaugeVec
}

// NewSampler returns a sampler that asks pid for the process to inspect;
// a pid <= 0 means nothing is running.
func NewSampler(cfg SamplerConfig, pid func() int) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 100
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "esbox",
			Subsystem: "script",
			Name:      name,
			Help:      help,
		}, []string{"pid"})
	}
	return &Sampler{
		interval:   cfg.Interval,
		pid:        pid,
		ring:       make([]ProcessSample, cfg.MaxHistory),
		stopCh:     make(chan struct{}),
		cpuPercent: gauge("cpu_percent", "CPU usage percentage of the running script."),
		memoryMB:   gauge("memory_mb", "Resident memory in MB of the running script."),
		numThreads: gauge("num_threads", "Number of threads of the running script."),
		numFDs:     gauge("num_fds", "Open file descriptors of the running script (Unix only)."),
	}
}

// RegisterMetrics registers the sampler gauges. When an earlier sampler already
// registered them the existing collectors are adopted.
func (s *Sampler) RegisterMetrics(r prometheus.Registerer) error {
	gauges := []**prometheus.GaugeVec{&s.cpuPercent, &s.memoryMB, &s.numThreads}
	if runtime.GOOS != "windows" {
		gauges = append(gauges, &s.numFDs)
	}
	for _, g := range gauges {
		if err := r.Register(*g); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				*g = existing
			}
		}
	}
	return nil
}

// Start begins periodic collection until ctx is done or Stop is called.
func (s *Sampler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Collect()
			}
		}
	}()
}

// Stop ends collection and waits for the loop to exit.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Collect takes one sample now. Gauges are reset when no script is alive so a
// dead pid does not linger on /metrics.
func (s *Sampler) Collect() {
	pid := s.pid()
	s.cpuPercent.Reset()
	s.memoryMB.Reset()
	s.numThreads.Reset()
	s.numFDs.Reset()
	if pid <= 0 {
		return
	}
	sample, err := SampleProcess(pid)
	if err != nil {
		slog.Debug("Failed to sample script", "pid", pid, "error", err)
		return
	}
	label := fmt.Sprint(pid)
	s.cpuPercent.WithLabelValues(label).Set(sample.CPUPercent)
	s.memoryMB.WithLabelValues(label).Set(sample.MemoryMB)
	s.numThreads.WithLabelValues(label).Set(float64(sample.NumThreads))
	if runtime.GOOS != "windows" && sample.NumFDs > 0 {
		s.numFDs.WithLabelValues(label).Set(float64(sample.NumFDs))
	}
	s.add(*sample)
}

// add appends to the circular buffer, overwriting the oldest entry when full.
func (s *Sampler) add(m ProcessSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	size := len(s.ring)
	if s.count < size {
		s.ring[(s.startIdx+s.count)%size] = m
		s.count++
		return
	}
	s.ring[s.startIdx] = m
	s.startIdx = (s.startIdx + 1) % size
}

// History returns up to limit samples, oldest first. limit <= 0 returns all.
func (s *Sampler) History(limit int) []ProcessSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]ProcessSample, 0, n)
	size := len(s.ring)
	for i := s.count - n; i < s.count; i++ {
		out = append(out, s.ring[(s.startIdx+i)%size])
	}
	return out
}

// Latest returns the newest sample, if any.
func (s *Sampler) Latest() (ProcessSample, bool) {
	h := s.History(1)
	if len(h) == 0 {
		return ProcessSample{}, false
	}
	return h[0], true
}
