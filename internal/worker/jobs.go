// Package worker consumes job streams and dispatches each job to
// exactly one orchestrator entry point. Every job is claimed through
// the idempotency table before it runs, so redeliveries are no-ops.
package worker

// Event types carried in stream envelopes. Reports and sync jobs ride
// the report/system streams; user-initiated jobs ride the message
// stream.
const (
	EventDailyReport  = "report.daily"
	EventWeeklyReport = "report.weekly"
	EventEveningPulse = "report.evening"
	EventSync         = "sync.data"
	EventQuestion     = "user.question"
	EventProposal     = "user.proposal"
)

// ReportJob triggers a scheduled report run.
type ReportJob struct {
	Notify bool `json:"notify"`
}

// SyncJob triggers a platform data refresh.
type SyncJob struct {
	Mode string `json:"mode"` // "full" or "recent"
}

// QuestionJob carries a free-text user question from the chat layer.
type QuestionJob struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
	ChatID   int64  `json:"chat_id"`
}

// ProposalJob carries a user request for a new campaign proposal.
type ProposalJob struct {
	Request string `json:"request"`
	UserID  string `json:"user_id"`
	ChatID  int64  `json:"chat_id"`
}
