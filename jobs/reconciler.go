package jobs

import (
	"context"
	"log"
	"time"

	"cirrusdrive/services"
	"cirrusdrive/utils"
)

// Reconciler periodically recomputes every user's used-storage counter
// from their file records. This is the authoritative repair path for
// counters left stale by partial upload/delete failures.
type Reconciler struct {
	users  services.UserStore
	ledger services.QuotaLedger
	bus    *services.EventBus
	logger *log.Logger
}

func NewReconciler(users services.UserStore, ledger services.QuotaLedger, bus *services.EventBus) *Reconciler {
	return &Reconciler{
		users:  users,
		ledger: ledger,
		bus:    bus,
		logger: log.New(log.Writer(), "[RECONCILER] ", log.LstdFlags),
	}
}

// Start runs a sweep immediately and then on every tick until ctx is
// cancelled.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	r.logger.Printf("starting reconciliation job, interval %v", interval)

	r.runSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("reconciliation job stopped")
			return
		case <-ticker.C:
			r.runSweep(ctx)
		}
	}
}

// RunOnce performs a single sweep, for use from tests or an admin hook.
func (r *Reconciler) RunOnce(ctx context.Context) (repaired int, err error) {
	return r.sweep(ctx)
}

func (r *Reconciler) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	repaired, err := r.sweep(sweepCtx)
	if err != nil {
		r.logger.Printf("sweep failed: %v", err)
		return
	}
	if repaired > 0 {
		r.logger.Printf("sweep completed, repaired %d counters", repaired)
	}
}

func (r *Reconciler) sweep(ctx context.Context) (int, error) {
	users, err := r.users.List(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, user := range users {
		before := user.UsedStorage
		after, err := r.ledger.Reconcile(ctx, user.ID.Hex())
		if err != nil {
			r.logger.Printf("failed to reconcile user %s: %v", user.ID.Hex(), err)
			continue
		}
		if after != before {
			utils.LogIntegrityWarning("counter drift repaired for user %s: %d -> %d bytes",
				user.ID.Hex(), before, after)
			repaired++
		}
	}

	if repaired > 0 {
		r.bus.Publish(services.Event{Topic: services.TopicUsers})
	}
	return repaired, nil
}
