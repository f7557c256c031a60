/*
Package notify is the downstream notification boundary.

PURPOSE:
  After a successful invoice or paystub commit the engine hands the
  generated totals and identifiers to this package. Delivery (rendered
  PDF + email in production) is fire-and-forget: it runs on a background
  worker, failures are logged, and nothing here can roll back the
  persisted financial record.

  The default Sender only logs. Wiring a real SMTP/PDF pipeline means
  implementing Sender; the engine never changes.
*/
package notify

import (
	"fmt"
	"log"
	"sync"

	"github.com/clearbrook/clinic-engine/billing"
)

// Message is one outbound notification.
type Message struct {
	Kind      string // "invoice", "paystub", "reminder"
	Recipient string
	Subject   string
	Body      string
}

// Sender delivers a single message.
type Sender interface {
	Send(Message) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(m Message) error {
	log.Printf("[Notify] %s -> %s: %s", m.Kind, m.Recipient, m.Subject)
	return nil
}

// =============================================================================
// QUEUE - Asynchronous delivery worker
// =============================================================================

// Queue delivers messages on a background goroutine. Enqueue never blocks
// the caller; a full queue drops the message with a log line rather than
// stalling a request.
type Queue struct {
	OrgName string

	sender Sender
	ch     chan Message
	once   sync.Once
	wg     sync.WaitGroup
}

func NewQueue(sender Sender, orgName string) *Queue {
	if sender == nil {
		sender = LogSender{}
	}
	return &Queue{OrgName: orgName, sender: sender, ch: make(chan Message, 64)}
}

// Start launches the delivery worker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for m := range q.ch {
			if err := q.sender.Send(m); err != nil {
				log.Printf("[Notify] delivery failed (%s to %s): %v", m.Kind, m.Recipient, err)
			}
		}
	}()
}

// Stop drains the queue and waits for the worker.
func (q *Queue) Stop() {
	q.once.Do(func() { close(q.ch) })
	q.wg.Wait()
}

func (q *Queue) enqueue(m Message) {
	select {
	case q.ch <- m:
	default:
		log.Printf("[Notify] queue full, dropping %s notification for %s", m.Kind, m.Recipient)
	}
}

// =============================================================================
// ENGINE-FACING NOTIFICATIONS
// =============================================================================

// InvoiceIssued queues a notification for a freshly generated invoice.
func (q *Queue) InvoiceIssued(inv billing.Invoice, client billing.Client) {
	q.enqueue(Message{
		Kind:      "invoice",
		Recipient: client.GuardianEmail,
		Subject:   fmt.Sprintf("%s - Invoice %s", q.OrgName, inv.Number),
		Body: fmt.Sprintf("Invoice %s for %s covering %s to %s. Total: $%s, due %s.",
			inv.Number, client.Name(),
			inv.DateFrom.Format("2006-01-02"), inv.DateTo.Format("2006-01-02"),
			inv.Total.StringFixed(2), inv.DueDate.Format("2006-01-02")),
	})
}

// PayStubIssued queues a notification for a committed paystub. Satisfies
// billing.PayStubNotifier.
func (q *Queue) PayStubIssued(stub billing.PayStub) {
	q.enqueue(Message{
		Kind:      "paystub",
		Recipient: string(stub.EmployeeID),
		Subject:   fmt.Sprintf("%s - Pay statement %s", q.OrgName, stub.PeriodStart.Format("2006-01")),
		Body: fmt.Sprintf("Pay period %s to %s: %s hours, $%s.",
			stub.PeriodStart.Format("2006-01-02"), stub.PeriodEnd.Format("2006-01-02"),
			stub.TotalHours.StringFixed(2), stub.TotalAmount.StringFixed(2)),
	})
}

// InvoiceReminder queues an overdue-invoice reminder.
func (q *Queue) InvoiceReminder(inv billing.Invoice, client billing.Client) {
	q.enqueue(Message{
		Kind:      "reminder",
		Recipient: client.GuardianEmail,
		Subject:   fmt.Sprintf("%s - Reminder: invoice %s is due", q.OrgName, inv.Number),
		Body: fmt.Sprintf("Invoice %s ($%s) was due %s. Please arrange payment.",
			inv.Number, inv.Total.StringFixed(2), inv.DueDate.Format("2006-01-02")),
	})
}
