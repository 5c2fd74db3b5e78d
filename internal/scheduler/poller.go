package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultPollInterval is how often the in-process poller checks for due
// campaigns when no interval is configured.
const DefaultPollInterval = 30 * time.Second

// Poller runs TriggerDue on a fixed interval. Deployments that rely on an
// external cron hitting the trigger endpoint can leave it stopped.
type Poller struct {
	scheduler *Scheduler
	interval  time.Duration

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller creates a poller. interval <= 0 uses DefaultPollInterval.
func NewPoller(s *Scheduler, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{scheduler: s, interval: interval}
}

// Start launches the poll loop. Returns an error if already running.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("poller already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	log.Printf("[Scheduler] Poller starting with interval %v", p.interval)
	go p.loop(ctx)
	return nil
}

// Stop halts the poll loop and waits for the in-flight pass to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	log.Printf("[Scheduler] Poller stopped")
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := p.scheduler.TriggerDue(ctx, "")
			if err != nil {
				log.Printf("[Scheduler] Poll pass failed: %v", err)
				continue
			}
			if report.Triggered > 0 {
				log.Printf("[Scheduler] Poll pass triggered %d of %d due campaigns", report.Triggered, report.Checked)
			}
		}
	}
}
