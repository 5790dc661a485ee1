package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"booking-app/config"
	"booking-app/internal/domain/credits"
	"booking-app/internal/domain/schedule"
	"booking-app/internal/scheduling"
)

// Runner drives the periodic maintenance of the scheduling engine: daily
// slot generation, session auto-completion, stale reservation cleanup and
// standalone credit expiry.
type Runner struct {
	svc       *scheduling.Service
	slots     *schedule.Store
	generator *schedule.Generator
	ledger    *credits.Ledger
	cfg       config.Scheduling

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	running bool
}

func NewRunner(svc *scheduling.Service, slots *schedule.Store, generator *schedule.Generator, ledger *credits.Ledger, cfg config.Scheduling) *Runner {
	return &Runner{
		svc:       svc,
		slots:     slots,
		generator: generator,
		ledger:    ledger,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
	}
}

// Start launches all maintenance loops.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true

	r.loop(time.Minute, r.autoComplete)
	r.loop(time.Minute, r.expireReservations)
	r.loop(time.Hour, r.expireCredits)
	r.dailyLoop(r.cfg.AutoGenerationTime, r.generateSlots)
}

// Stop signals every loop to exit and waits for them.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) loop(every time.Duration, fn func(now time.Time)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case now := <-ticker.C:
				fn(now.UTC())
			}
		}
	}()
}

// dailyLoop fires fn once a day at the configured "HH:MM" wall-clock time.
func (r *Runner) dailyLoop(at string, fn func(now time.Time)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			now := time.Now().In(r.cfg.Location)
			next, err := schedule.CombineDateTime(now, at, r.cfg.Location)
			if err != nil {
				log.Println("invalid auto-generation time", at, ":", err)
				return
			}
			if !next.After(now) {
				next = next.AddDate(0, 0, 1)
			}

			select {
			case <-r.stopCh:
				return
			case <-time.After(next.Sub(now)):
				fn(time.Now().UTC())
			}
		}
	}()
}

func (r *Runner) autoComplete(now time.Time) {
	if n, err := r.svc.AutoComplete(context.Background(), now); err != nil {
		log.Println("auto-complete pass failed:", err)
	} else if n > 0 {
		log.Println("auto-completed", n, "sessions")
	}
}

func (r *Runner) expireReservations(now time.Time) {
	if n, err := r.svc.ExpireUnconfirmed(context.Background(), now); err != nil {
		log.Println("unconfirmed booking expiry failed:", err)
	} else if n > 0 {
		log.Println("cancelled", n, "unconfirmed bookings")
	}
	if n, err := r.slots.ExpireStaleReservations(now); err != nil {
		log.Println("reservation expiry failed:", err)
	} else if n > 0 {
		log.Println("released", n, "stale reservations")
	}
}

func (r *Runner) expireCredits(now time.Time) {
	if n, err := r.ledger.ExpireStandalone(now); err != nil {
		log.Println("credit expiry failed:", err)
	} else if n > 0 {
		log.Println("expired", n, "standalone credits")
	}
}

func (r *Runner) generateSlots(now time.Time) {
	if n, err := r.generator.GenerateDaily(now); err != nil {
		log.Println("slot generation failed:", err)
	} else {
		log.Println("generated", n, "slots for the horizon day")
	}
}
