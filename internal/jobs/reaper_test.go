package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"crm-calls/internal/auth"
	"crm-calls/internal/calllog"
	"crm-calls/internal/calls"
	"crm-calls/internal/metrics"
	"crm-calls/internal/presence"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
)

type stubReaper struct {
	cutoff time.Time
	n      int
	err    error
}

func (s *stubReaper) ReapStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.cutoff = cutoff
	return s.n, s.err
}

func (s *stubReaper) PruneStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.cutoff = cutoff
	return s.n, s.err
}

func TestRunOnce_UsesCutoffs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions := &stubReaper{n: 2}
	pres := &stubReaper{n: 3}
	r := NewReaper(sessions, pres, 2*time.Minute, 90*time.Second, WithClock(func() time.Time { return now }))

	missed, offline, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if missed != 2 || offline != 3 {
		t.Fatalf("unexpected counts: missed=%d offline=%d", missed, offline)
	}
	if !sessions.cutoff.Equal(now.Add(-2*time.Minute)) || !pres.cutoff.Equal(now.Add(-90*time.Second)) {
		t.Fatalf("unexpected cutoffs: %s %s", sessions.cutoff, pres.cutoff)
	}
}

func TestRunOnce_PresenceRunsWhenSessionsFail(t *testing.T) {
	sessions := &stubReaper{err: errors.New("db down")}
	pres := &stubReaper{n: 1}
	r := NewReaper(sessions, pres, time.Minute, time.Minute)

	_, offline, err := r.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if offline != 1 || pres.cutoff.IsZero() {
		t.Fatalf("presence sweep must still run")
	}
}

func TestRunOnce_ReapsStoreAndRecordsMetrics(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	repo := calls.NewMemoryRepo()
	store := calls.NewStore(repo, calllog.NewService(calllog.NewMemoryRepo()), calls.WithClock(clock))
	ctx := auth.WithIdentity(context.Background(), "c", auth.UserTypeCustomer)
	sess, err := store.Create(ctx, "d", calls.CallTypeAudio, auth.UserTypeCustomer)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	pres := presence.NewService(presence.NewMemoryRepo(), nil).WithClock(clock)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	later := now.Add(5 * time.Minute)
	r := NewReaper(store, pres, 2*time.Minute, time.Minute,
		WithClock(func() time.Time { return later }), WithMetrics(m))

	missed, _, err := r.RunOnce(context.Background())
	if err != nil || missed != 1 {
		t.Fatalf("expected one reaped session, got %d (err %v)", missed, err)
	}
	got, err := repo.Get(context.Background(), sess.ID)
	if err != nil || got.Status != calls.StatusMissed {
		t.Fatalf("expected missed, got %+v (err %v)", got, err)
	}
	want := `
# HELP crm_jobs_reaped_total Rows moved by the periodic sweep, labeled by kind
# TYPE crm_jobs_reaped_total counter
crm_jobs_reaped_total{kind="call_session"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "crm_jobs_reaped_total"); err != nil {
		t.Fatalf("reaped metric: %v", err)
	}
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	r := NewReaper(&stubReaper{}, &stubReaper{}, time.Minute, time.Minute)
	if err := r.Start("every now and then"); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestStart_RegistersJob(t *testing.T) {
	c := cron.New(cron.WithLocation(time.UTC))
	r := NewReaper(&stubReaper{}, &stubReaper{}, time.Minute, time.Minute, WithCron(c))
	if err := r.Start("@every 1m"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop()
	if n := len(c.Entries()); n != 1 {
		t.Fatalf("expected one scheduled job, got %d", n)
	}
}
