package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/isdelr/neuroscan-be/internal/models"
	"github.com/isdelr/neuroscan-be/internal/services"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	cpuAlertThreshold = 90.0
	alertCooldown     = 10 * time.Minute
)

// Sampler reads host utilisation.
type Sampler func(ctx context.Context) (models.HostStats, error)

// HostSampler samples CPU and memory through gopsutil.
func HostSampler(ctx context.Context) (models.HostStats, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return models.HostStats{}, fmt.Errorf("sample cpu: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.HostStats{}, fmt.Errorf("sample memory: %w", err)
	}

	stats := models.HostStats{MemoryPercent: vm.UsedPercent, SampledAt: time.Now()}
	if len(cpuPercents) > 0 {
		stats.CPUPercent = cpuPercents[0]
	}
	return stats, nil
}

// StatUpdater periodically samples host load. Inference is CPU/GPU heavy, so
// sustained high CPU is recorded as an event.
type StatUpdater struct {
	sample    Sampler
	eventSvc  services.EventServiceProvider
	interval  time.Duration
	done      chan struct{}
	mu        sync.RWMutex
	latest    models.HostStats
	lastAlert time.Time
}

// NewStatUpdater creates a new StatUpdater.
func NewStatUpdater(sample Sampler, eventSvc services.EventServiceProvider, interval time.Duration) *StatUpdater {
	return &StatUpdater{
		sample:   sample,
		eventSvc: eventSvc,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Run starts the periodic updates.
func (su *StatUpdater) Run() {
	log.Info().Dur("interval", su.interval).Msg("Starting background stat updater...")
	ticker := time.NewTicker(su.interval)
	defer ticker.Stop()

	// Run once immediately on start
	su.update()

	for {
		select {
		case <-su.done:
			log.Info().Msg("Stopping background stat updater.")
			return
		case <-ticker.C:
			su.update()
		}
	}
}

// Stop halts the updater.
func (su *StatUpdater) Stop() {
	close(su.done)
}

// Latest returns the most recent sample; SampledAt is zero before the first one.
func (su *StatUpdater) Latest() models.HostStats {
	su.mu.RLock()
	defer su.mu.RUnlock()
	return su.latest
}

func (su *StatUpdater) update() {
	ctx, cancel := context.WithTimeout(context.Background(), su.interval)
	defer cancel()

	stats, err := su.sample(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to sample host stats")
		return
	}

	su.mu.Lock()
	su.latest = stats
	alert := stats.CPUPercent >= cpuAlertThreshold && stats.SampledAt.Sub(su.lastAlert) >= alertCooldown
	if alert {
		su.lastAlert = stats.SampledAt
	}
	su.mu.Unlock()

	if alert && su.eventSvc != nil {
		msg := fmt.Sprintf("Host CPU usage at %.0f%%; inference requests may be slow", stats.CPUPercent)
		if err := su.eventSvc.CreateEvent(ctx, "system.alert.cpu", "warn", msg, nil); err != nil {
			log.Error().Err(err).Msg("Failed to record CPU alert")
		}
	}
}
