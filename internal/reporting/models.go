package reporting

import (
	"time"

	"crm-calls/internal/calls"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics for the admin dashboard.
// CallerType narrows the sessions to calls placed by customers or by admins.
type CallsSummaryRequest struct {
	Range      TimeRange `json:"range"`
	CallerType string    `json:"caller_type,omitempty"`
}

type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalSessions    int `json:"total_sessions"`
	EndedCalls       int `json:"ended_calls"`
	DeclinedCalls    int `json:"declined_calls"`
	MissedCalls      int `json:"missed_calls"`
	ActiveCalls      int `json:"active_calls"`
	UnansweredCalls  int `json:"unanswered_calls"`
	AnsweredSessions int `json:"answered_sessions"`

	ByType map[calls.CallType]int `json:"by_type"`

	// Durations come from call_logs, one entry per ended call.
	LoggedCalls            int `json:"logged_calls"`
	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	AnswerRate float64 `json:"answer_rate"`
}

// ParticipantSummaryRequest requests one user's call activity.
type ParticipantSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type ParticipantSummary struct {
	UserID string `json:"user_id"`

	CallsPlaced   int `json:"calls_placed"`
	CallsReceived int `json:"calls_received"`
	CallsAnswered int `json:"calls_answered"`
	CallsMissed   int `json:"calls_missed"`

	TalkTimeSeconds int `json:"talk_time_seconds"`
}
