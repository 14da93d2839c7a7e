package reporting

import (
	"context"
	"errors"
	"time"

	"crm-calls/internal/calllog"
	"crm-calls/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
// Durations are read from call_logs, which is immutable; session rows only
// contribute statuses.
type Repository interface {
	ListSessions(ctx context.Context, from, to time.Time) ([]calls.Session, error)
	ListCallLogs(ctx context.Context, from, to time.Time) ([]calllog.Entry, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func validRange(r TimeRange) bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if !validRange(req.Range) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	sessions, err := s.repo.ListSessions(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}
	logs, err := s.repo.ListCallLogs(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: req.Range, ByType: map[calls.CallType]int{}}
	included := make(map[string]bool, len(sessions))
	for _, sess := range sessions {
		if req.CallerType != "" && string(sess.CallerType) != req.CallerType {
			continue
		}
		included[sess.ID] = true
		out.TotalSessions++
		out.ByType[sess.CallType]++
		if sess.StartTime != nil {
			out.AnsweredSessions++
		}
		switch sess.Status {
		case calls.StatusEnded:
			out.EndedCalls++
		case calls.StatusDeclined:
			out.DeclinedCalls++
		case calls.StatusMissed:
			out.MissedCalls++
		case calls.StatusActive:
			out.ActiveCalls++
		case calls.StatusPending, calls.StatusRinging:
			out.UnansweredCalls++
		}
	}

	for _, e := range logs {
		if req.CallerType != "" && !included[e.CallSessionID] {
			continue
		}
		out.LoggedCalls++
		out.TotalDurationSeconds += e.DurationSeconds
	}
	if out.LoggedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.LoggedCalls
	}
	if out.TotalSessions > 0 {
		out.AnswerRate = float64(out.AnsweredSessions) / float64(out.TotalSessions)
	}
	return out, nil
}

func (s *Service) ParticipantSummary(ctx context.Context, req ParticipantSummaryRequest) (ParticipantSummary, error) {
	if req.UserID == "" || !validRange(req.Range) {
		return ParticipantSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return ParticipantSummary{}, errors.New("reporting: repository not configured")
	}

	sessions, err := s.repo.ListSessions(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return ParticipantSummary{}, err
	}
	logs, err := s.repo.ListCallLogs(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return ParticipantSummary{}, err
	}

	out := ParticipantSummary{UserID: req.UserID}
	for _, sess := range sessions {
		switch req.UserID {
		case sess.CallerID:
			out.CallsPlaced++
		case sess.CalleeID:
			out.CallsReceived++
			if sess.StartTime != nil {
				out.CallsAnswered++
			}
			if sess.Status == calls.StatusMissed {
				out.CallsMissed++
			}
		}
	}
	for _, e := range logs {
		if e.CallerID == req.UserID || e.CalleeID == req.UserID {
			out.TalkTimeSeconds += e.DurationSeconds
		}
	}
	return out, nil
}
