package notify

import "github.com/ammonsd/activitytracking-core/pkg/notifx"

// Template names for the notification event alphabet. RegisterTemplates
// should be called once at startup against the notifx.Client the
// Dispatcher's worker uses.
const (
	templateExpenseSubmitted  = "expense_submitted"
	templateExpenseApproved   = "expense_approved"
	templateExpenseRejected   = "expense_rejected"
	templateExpenseReimbursed = "expense_reimbursed"
	templatePasswordExpiring  = "password_expiring"
	templatePasswordExpired   = "password_expired"
	templateJenkinsEvent      = "jenkins_event"
)

// RegisterTemplates parses every named template into mail's registry.
// Kept deliberately plain text with minimal markup, matching the
// console/SES providers' shared HTMLBody field.
func RegisterTemplates(mail *notifx.Client) error {
	templates := map[string]string{
		templateExpenseSubmitted: `
			<p>Expense #{{.Expense.ID}} from {{.Expense.OwnerUsername}} for {{.Expense.Amount}}
			was submitted and is awaiting approval.</p>`,

		templateExpenseApproved: `
			<p>Your expense #{{.Expense.ID}} ({{.Expense.Amount}}) was approved
			by {{.Expense.ApprovedBy}}.</p>`,

		templateExpenseRejected: `
			<p>Your expense #{{.Expense.ID}} ({{.Expense.Amount}}) was rejected.</p>
			<p>Reason: {{.Expense.RejectionReason}}</p>`,

		templateExpenseReimbursed: `
			<p>Your expense #{{.Expense.ID}} ({{.Expense.Amount}}) has been reimbursed.</p>`,

		templatePasswordExpiring: `
			<p>Hi {{.Username}}, your password expires in {{.DaysLeft}} day(s).
			Please change it soon to avoid being locked out.</p>`,

		templatePasswordExpired: `
			<p>Hi {{.Username}}, your password has expired. Please change it
			the next time you sign in.</p>`,

		templateJenkinsEvent: `
			<p>[{{.Kind}}] {{.Detail}} at {{.At}}</p>`,
	}

	for name, body := range templates {
		if err := mail.RegisterTemplate(name, body); err != nil {
			return err
		}
	}
	return nil
}
