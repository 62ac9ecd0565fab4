package probes

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

// DefaultSampleInterval is how often process CPU usage is sampled
const DefaultSampleInterval = 5 * time.Second

// GoSelfProbe implements SelfProbe using gopsutil
type GoSelfProbe struct {
	version   string
	startTime time.Time
	proc      *process.Process
	cores     int

	mu               sync.RWMutex
	cachedCPUPercent float64
	stopSampler      chan struct{}
	stopOnce         sync.Once
}

// NewGoSelfProbe creates a probe for the current process and starts a
// background CPU sampler. Call Stop to end it.
func NewGoSelfProbe(version string, interval time.Duration) (*GoSelfProbe, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultSampleInterval
	}

	cores := runtime.NumCPU()
	if c, err := cpu.Counts(true); err == nil && c > 0 {
		cores = c
	}

	probe := &GoSelfProbe{
		version:     version,
		startTime:   time.Now(),
		proc:        p,
		cores:       cores,
		stopSampler: make(chan struct{}),
	}

	// First call only sets the baseline
	_, _ = p.Percent(0)

	go probe.cpuSampler(interval)

	return probe, nil
}

func (p *GoSelfProbe) cpuSampler(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sampleCPU()
		case <-p.stopSampler:
			return
		}
	}
}

func (p *GoSelfProbe) sampleCPU() {
	pct, err := p.proc.Percent(0)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// gopsutil reports a percentage of one core; normalize to the whole machine
	p.cachedCPUPercent = round(pct/float64(p.cores), 2)
}

// Stop stops the CPU sampler
func (p *GoSelfProbe) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopSampler)
	})
}

// Sample returns the current process information
func (p *GoSelfProbe) Sample() (*types.AgentInfo, error) {
	hostname, _ := os.Hostname()

	p.mu.RLock()
	cpuPercent := p.cachedCPUPercent
	p.mu.RUnlock()

	var rss uint64
	if memInfo, err := p.proc.MemoryInfo(); err == nil {
		rss = memInfo.RSS
	} else {
		// Fallback to Go runtime memory stats
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		rss = m.Sys
	}

	return &types.AgentInfo{
		PID:        os.Getpid(),
		Hostname:   hostname,
		Version:    p.version,
		Platform:   runtime.GOOS,
		Uptime:     time.Since(p.startTime).Seconds(),
		CPUPercent: cpuPercent,
		RSS:        rss,
	}, nil
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	shift := float64(1)
	for i := 0; i < decimals; i++ {
		shift *= 10
	}
	return float64(int(val*shift+0.5)) / shift
}
