// Package notify implements the Notification Dispatcher: it accepts
// workflow and security events and enqueues a templated-message job on
// jobx (async queue), so that the enqueue step is synchronous with the
// triggering transition while template rendering and SMTP/API delivery
// happen in the worker. Built on the pairing of pkg/jobx with pkg/notifx.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/expense"
	"github.com/ammonsd/activitytracking-core/pkg/jobx"
	"github.com/ammonsd/activitytracking-core/pkg/logx"
	"github.com/ammonsd/activitytracking-core/pkg/notifx"
	"github.com/ammonsd/activitytracking-core/pkg/store"
)

const QueueName = "notifications"
const jobType = "notify.send"

// EmailLookup resolves a username to a notification address. Events
// addressed to a user without a configured email are silently dropped
// (logged at INFO).
type EmailLookup interface {
	FindByUsername(ctx context.Context, username string) (*store.User, error)
}

// Dispatcher is the Notification Dispatcher. It implements
// expense.Notifier directly and exposes dedicated methods for the
// security-side event kinds (password expiration, Jenkins CI events).
type Dispatcher struct {
	jobs      *jobx.Client
	users     EmailLookup
	fromAddr  string
	adminList []string
}

func NewDispatcher(jobs *jobx.Client, users EmailLookup, fromAddr string, adminList []string) *Dispatcher {
	return &Dispatcher{jobs: jobs, users: users, fromAddr: fromAddr, adminList: adminList}
}

// renderedJob is the payload queued to jobx; the worker side
// (RegisterWorker) renders the named template and sends via notifx.
type renderedJob struct {
	Template string          `json:"template"`
	To       []string        `json:"to"`
	Subject  string          `json:"subject"`
	Data     json.RawMessage `json:"data"`
}

func (d *Dispatcher) enqueue(ctx context.Context, templateName, subject string, to []string, data interface{}) error {
	if len(to) == 0 {
		logx.WithField("template", templateName).Info("notification dropped: no recipients configured")
		return nil
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(renderedJob{Template: templateName, To: to, Subject: subject, Data: encoded})
	if err != nil {
		return err
	}

	_, err = d.jobs.Enqueue(ctx, jobx.Job{Type: jobType, Queue: QueueName, Payload: payload})
	return err
}

func (d *Dispatcher) emailFor(ctx context.Context, username string) []string {
	u, err := d.users.FindByUsername(ctx, username)
	if err != nil || u.Email == "" {
		logx.WithField("username", username).Info("notification dropped: no email on file")
		return nil
	}
	return []string{u.Email}
}

// NotifyExpenseEvent implements expense.Notifier.
func (d *Dispatcher) NotifyExpenseEvent(ctx context.Context, kind expense.NotificationKind, e store.Expense) error {
	switch kind {
	case expense.NotifySubmitted:
		return d.enqueue(ctx, templateExpenseSubmitted, "Expense submitted for approval", d.approverRecipients(ctx), expenseData{Expense: e})
	case expense.NotifyApproved:
		return d.enqueue(ctx, templateExpenseApproved, "Your expense was approved", d.emailFor(ctx, e.OwnerUsername), expenseData{Expense: e})
	case expense.NotifyRejected:
		return d.enqueue(ctx, templateExpenseRejected, "Your expense was rejected", d.emailFor(ctx, e.OwnerUsername), expenseData{Expense: e})
	case expense.NotifyReimbursed:
		return d.enqueue(ctx, templateExpenseReimbursed, "Your expense was reimbursed", d.emailFor(ctx, e.OwnerUsername), expenseData{Expense: e})
	default:
		return nil
	}
}

// approverRecipients is the expense-approver list: configuration, not
// core behavior — the admin list is treated as an opaque recipient set.
func (d *Dispatcher) approverRecipients(ctx context.Context) []string {
	return d.adminList
}

// NotifyPasswordExpiring implements the Scheduler's daily scan event.
func (d *Dispatcher) NotifyPasswordExpiring(ctx context.Context, username string, daysLeft int) error {
	return d.enqueue(ctx, templatePasswordExpiring, "Your password is expiring soon", d.emailFor(ctx, username), passwordData{Username: username, DaysLeft: daysLeft})
}

func (d *Dispatcher) NotifyPasswordExpired(ctx context.Context, username string) error {
	return d.enqueue(ctx, templatePasswordExpired, "Your password has expired", d.emailFor(ctx, username), passwordData{Username: username})
}

// NotifyJenkinsEvent handles the JENKINS_BUILD_* / JENKINS_DEPLOY_* alphabet;
// recipients come entirely from configuration.
func (d *Dispatcher) NotifyJenkinsEvent(ctx context.Context, kind, subject, detail string) error {
	return d.enqueue(ctx, templateJenkinsEvent, subject, d.adminList, jenkinsData{Kind: kind, Detail: detail, At: time.Now().UTC()})
}

type expenseData struct {
	Expense store.Expense
}

type passwordData struct {
	Username string
	DaysLeft int
}

type jenkinsData struct {
	Kind   string
	Detail string
	At     time.Time
}

// RegisterWorker wires the render+send handler into a jobx.Client running
// as a background worker, so delivery happens asynchronously with
// respect to the triggering transition.
func RegisterWorker(jobs *jobx.Client, mail *notifx.Client, fromAddr string) {
	jobs.Register(jobType, func(ctx context.Context, job *jobx.JobInfo) error {
		var rj renderedJob
		if err := json.Unmarshal(job.Payload, &rj); err != nil {
			return err
		}
		var data interface{}
		if err := json.Unmarshal(rj.Data, &data); err != nil {
			return err
		}

		msg := notifx.EmailMessage{From: fromAddr, To: rj.To, Subject: rj.Subject}
		if err := mail.SendTemplatedEmail(ctx, rj.Template, data, msg); err != nil {
			// Delivery failures are logged and do not retry within the
			// request path; jobx's own retry policy, not this handler,
			// decides whether to try again.
			logx.WithError(err).WithField("template", rj.Template).Warn("notification delivery failed")
			return err
		}
		return nil
	})
}
