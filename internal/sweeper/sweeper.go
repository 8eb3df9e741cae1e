// Package sweeper persists SLA expiry on overdue requests. Display-time
// expiry is already handled by the read-path overlay; the sweeper exists
// so the audit trail and stored statuses eventually agree with it.
package sweeper

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/taskdeskhq/taskdesk/internal/audit"
	"github.com/taskdeskhq/taskdesk/internal/models"
	"github.com/taskdeskhq/taskdesk/internal/store"
)

var requestsExpired = promauto.NewCounter(prometheus.CounterOpts{
	Name: "taskdesk_requests_expired_total",
	Help: "Requests transitioned to expired by the sweeper.",
})

// Sweeper runs the periodic pending/approved to expired transition.
type Sweeper struct {
	store    *store.Store
	recorder *audit.Recorder
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a sweeper. A non-positive interval falls back to one minute.
func New(s *store.Store, rec *audit.Recorder, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		store:    s,
		recorder: rec,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the sweep loop.
func (sw *Sweeper) Start() {
	sw.wg.Add(1)
	go sw.loop()
	log.Println("Expiry sweeper started")
}

// Stop gracefully stops the sweeper.
func (sw *Sweeper) Stop() {
	sw.cancel()
	sw.wg.Wait()
	log.Println("Expiry sweeper stopped")
}

func (sw *Sweeper) loop() {
	defer sw.wg.Done()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sw.ctx.Done():
			return
		case <-ticker.C:
			sw.SweepOnce(time.Now().UTC())
		}
	}
}

// SweepOnce runs a single sweep. Safe to call concurrently with live
// decisions: the store's conditional update lets a late respond and the
// sweep race without double-writing.
func (sw *Sweeper) SweepOnce(now time.Time) int {
	expired, err := sw.store.ExpireOverdue(now)
	if err != nil {
		log.Printf("Error expiring overdue requests: %v", err)
		return 0
	}

	for _, req := range expired {
		requestsExpired.Inc()
		log.Printf("Request %s on task %s expired (deadline %v)", req.ID, req.TaskID, req.ExpiresAt)
		if _, err := sw.recorder.Record(req.TaskID, models.EventRequestExpired, "", "",
			map[string]string{"request_id": req.ID}, "SLA deadline passed without a decision"); err != nil {
			log.Printf("Error recording expiry event: %v", err)
		}
	}
	return len(expired)
}
