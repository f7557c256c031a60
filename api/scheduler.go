/*
scheduler.go - Automated overdue-invoice reminder scheduler

PURPOSE:
  Periodically scans for sent invoices whose due date has passed and
  queues a reminder notification for each. Delivery is fire-and-forget
  through the notify queue; a failed reminder never touches invoice state.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Scans invoices in status Sent with due_date <= now
  - Skips invoices whose client record is gone (nothing to address)

CONFIGURATION:
  - CheckInterval: How often to scan (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReminderScheduler(store, queue)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - notify/notify.go: Delivery queue
  - billing/store.go: ListInvoicesDue
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/clearbrook/clinic-engine/billing"
	"github.com/clearbrook/clinic-engine/notify"
	"github.com/clearbrook/clinic-engine/store/sqlite"
)

// ReminderScheduler sends periodic reminders for overdue invoices.
type ReminderScheduler struct {
	Store         *sqlite.Store
	Notify        *notify.Queue
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReminderScheduler creates a new scheduler.
func NewReminderScheduler(store *sqlite.Store, queue *notify.Queue) *ReminderScheduler {
	return &ReminderScheduler{
		Store:         store,
		Notify:        queue,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *ReminderScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *ReminderScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndRemind()

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndRemind()
		case <-rs.stop:
			return
		}
	}
}

func (rs *ReminderScheduler) checkAndRemind() {
	ctx := context.Background()
	now := time.Now()

	overdue, err := rs.Store.ListInvoicesDue(ctx, billing.StatusSent, now)
	if err != nil {
		log.Printf("[Scheduler] Failed to scan overdue invoices: %v", err)
		return
	}
	if len(overdue) == 0 {
		return
	}

	log.Printf("[Scheduler] %d overdue invoice(s) found", len(overdue))
	for _, inv := range overdue {
		client, err := rs.Store.GetClient(ctx, inv.ClientID)
		if err != nil {
			log.Printf("[Scheduler] Failed to load client %s for invoice %s: %v", inv.ClientID, inv.Number, err)
			continue
		}
		if client == nil || client.GuardianEmail == "" {
			continue
		}
		rs.Notify.InvoiceReminder(inv, *client)
	}
}
