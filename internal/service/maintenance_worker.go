package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SessionIdleTTL is how long an idle suspicion session is kept in memory.
const SessionIdleTTL = time.Hour

// MaintenanceWorker periodically drops expired gate windows, elapsed
// cooldowns and idle suspicion sessions so in-memory state stays bounded.
type MaintenanceWorker struct {
	gate      *VoteGate
	suspicion *SuspicionMonitor
	interval  time.Duration
	stopCh    chan struct{}
	log       zerolog.Logger
}

func NewMaintenanceWorker(gate *VoteGate, suspicion *SuspicionMonitor, interval time.Duration, logger zerolog.Logger) *MaintenanceWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MaintenanceWorker{
		gate:      gate,
		suspicion: suspicion,
		interval:  interval,
		stopCh:    make(chan struct{}),
		log:       logger,
	}
}

// Start runs one sweep immediately, then every interval until stopped.
func (w *MaintenanceWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("maintenance-worker: starting")

	w.tick()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick()
		case <-ctx.Done():
			w.log.Info().Msg("maintenance-worker: stopping (context cancelled)")
			return
		case <-w.stopCh:
			w.log.Info().Msg("maintenance-worker: stopping (stop signal)")
			return
		}
	}
}

func (w *MaintenanceWorker) Stop() {
	close(w.stopCh)
}

func (w *MaintenanceWorker) tick() {
	start := time.Now()
	windows, cooldowns := w.gate.Sweep()
	sessions := w.suspicion.Sweep(SessionIdleTTL)
	w.log.Debug().
		Int("windows", windows).
		Int("cooldowns", cooldowns).
		Int("sessions", sessions).
		Dur("elapsed", time.Since(start)).
		Msg("maintenance-worker: sweep complete")
}
