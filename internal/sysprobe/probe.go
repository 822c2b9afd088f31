// Package sysprobe samples host-level utilization and feeds it to the
// resource analysis as current/capacity metric pairs. It is an optional
// input: the engine works without it when callers supply their own
// utilization figures.
package sysprobe

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/optiq-labs/optiq/pkg/models"
)

// Probe collects host utilization via gopsutil
type Probe struct {
	logger *logrus.Logger
}

// NewProbe creates a host utilization probe
func NewProbe(logger *logrus.Logger) *Probe {
	if logger == nil {
		logger = logrus.New()
	}
	return &Probe{logger: logger}
}

// Sample collects current usage and capacity per metric. Metrics that
// fail to collect are logged and omitted rather than failing the sample.
func (p *Probe) Sample(ctx context.Context) (current, capacity map[string]float64, err error) {
	current = make(map[string]float64)
	capacity = make(map[string]float64)

	cpuPercent, cpuErr := cpu.PercentWithContext(ctx, time.Second, false)
	if cpuErr != nil || len(cpuPercent) == 0 {
		p.logger.WithError(cpuErr).Warn("Failed to get CPU usage")
	} else {
		current["cpu"] = cpuPercent[0]
		capacity["cpu"] = 100.0
	}

	vmem, memErr := mem.VirtualMemoryWithContext(ctx)
	if memErr != nil {
		p.logger.WithError(memErr).Warn("Failed to get memory stats")
	} else {
		current["memory"] = float64(vmem.Used)
		capacity["memory"] = float64(vmem.Total)
	}

	avg, loadErr := load.AvgWithContext(ctx)
	if loadErr != nil {
		p.logger.WithError(loadErr).Warn("Failed to get load average")
	} else {
		current["load"] = avg.Load1
		capacity["load"] = float64(runtime.NumCPU())
	}

	if len(current) == 0 {
		return nil, nil, fmt.Errorf("no host metrics could be collected")
	}

	return current, capacity, nil
}

// LoadMetrics collects a system load snapshot in the engine's telemetry
// shape. Queue depth is not observable from the host; callers that track
// one should overwrite it.
func (p *Probe) LoadMetrics(ctx context.Context) (models.SystemLoadMetrics, error) {
	cpuPercent, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return models.SystemLoadMetrics{}, fmt.Errorf("failed to get CPU usage: %w", err)
	}

	utilization := 0.0
	if len(cpuPercent) > 0 {
		utilization = cpuPercent[0] / 100.0
	}

	return models.SystemLoadMetrics{
		CPUUtilization: utilization,
		Timestamp:      time.Now(),
	}, nil
}

// ResourceAnalyzer is the part of the engine the probe drives
type ResourceAnalyzer interface {
	AnalyzeResources(current, capacity map[string]float64) models.ResourceOptimizationResult
}

// Run samples on the given interval and pushes results into the analyzer
// until the context is cancelled.
func (p *Probe) Run(ctx context.Context, analyzer ResourceAnalyzer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, capacity, err := p.Sample(ctx)
			if err != nil {
				p.logger.WithError(err).Warn("host utilization sample failed")
				continue
			}

			result := analyzer.AnalyzeResources(current, capacity)
			if result.ShouldOptimize {
				p.logger.WithFields(logrus.Fields{
					"strategy":  result.Strategy,
					"pressured": result.PressuredResources,
				}).Info("host resource pressure detected")
			}
		}
	}
}
