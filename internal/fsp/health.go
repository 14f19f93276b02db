package fsp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// HealthMonitor drives Registry.PerformHealthCheck on a schedule. It owns
// its own lifecycle so the server and worker processes can run one each
// without sharing timers with request handling.
type HealthMonitor struct {
	registry *Registry
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewHealthMonitor(registry *Registry, schedule string, logger *slog.Logger) *HealthMonitor {
	return &HealthMonitor{
		registry: registry,
		schedule: schedule,
		timeout:  30 * time.Second,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start runs one immediate probe so routing has fresh data before the first
// tick, then checks on the configured schedule.
func (m *HealthMonitor) Start() error {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		m.registry.PerformHealthCheck(ctx)
	}

	if _, err := m.cron.AddFunc(m.schedule, run); err != nil {
		return fmt.Errorf("health monitor schedule %q: %w", m.schedule, err)
	}

	go run()
	m.cron.Start()
	m.logger.Info("fsp health monitor started", "schedule", m.schedule)
	return nil
}

// Stop halts the schedule and waits for an in-flight probe to finish.
func (m *HealthMonitor) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info("fsp health monitor stopped")
}
