package activity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"schedlog/internal/apperr"
	"schedlog/internal/identity"
	"schedlog/internal/session"
	"schedlog/internal/store"
	"schedlog/internal/testutil"
	"schedlog/internal/validate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	st    *store.Gorm
	auth  *identity.Authority
	sess  *session.Manager
	clock *testutil.Clock
	log   *Log
}

func newFixture(t *testing.T) *fixture {
	gdb := testutil.OpenDB(t)
	f := &fixture{
		st:    store.New(gdb),
		auth:  testutil.NewAuthority(gdb),
		clock: testutil.NewClock(t0),
	}
	f.sess = f.signIn(t, "a@x.com", true)
	f.log = New(f.sess, f.st, WithClock(f.clock.Now), WithLogger(zaptest.NewLogger(t)))
	return f
}

func (f *fixture) signIn(t *testing.T, email string, signup bool) *session.Manager {
	m := session.NewManager(identity.NewClient(f.auth), f.st, nil, zaptest.NewLogger(t))
	t.Cleanup(m.Close)
	if signup {
		require.NoError(t, m.Signup(context.Background(), email, "pw", "pw"))
	} else {
		require.NoError(t, m.Login(context.Background(), email, "pw", false))
	}
	return m
}

// runToExpiry ticks the countdown once per simulated second until it stops.
func (f *fixture) runToExpiry(t *testing.T) Status {
	var st Status
	for i := 0; i < 24*3600; i++ {
		f.clock.Advance(time.Second)
		st = f.log.Tick()
		if st.Phase == Prompt {
			return st
		}
	}
	t.Fatal("countdown never expired")
	return st
}

func (f *fixture) storedRecords(t *testing.T) []store.ActivityRecord {
	l, err := f.st.Schedule(context.Background(), f.sess.Snapshot().ScheduleID)
	require.NoError(t, err)
	return l.Records
}

func TestConfigureClamps(t *testing.T) {
	tests := []struct {
		h, m, s float64
		want    Duration
	}{
		{-5, -1, 59.9, Duration{0, 0, 59}},
		{99, 70, 0, Duration{23, 59, 0}},
		{1.7, 2.2, 3.99, Duration{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.h, tt.m, tt.s), func(t *testing.T) {
			l := New(nil, nil)
			got, err := l.Configure(tt.h, tt.m, tt.s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, l.Status().Configured)
		})
	}
}

func TestDurationTotal(t *testing.T) {
	assert.Equal(t, 3*time.Minute, DefaultDuration.Total())
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, Duration{1, 2, 3}.Total())

	st := New(nil, nil).Status()
	assert.Equal(t, Idle, st.Phase)
	assert.Equal(t, DefaultDuration, st.Configured)
	assert.Equal(t, 3*time.Minute, st.Remaining)
}

func TestExpiryThenCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.log.Configure(0, 0, 5)
	require.NoError(t, err)
	require.NoError(t, f.log.Start())
	assert.Equal(t, t0, f.log.Status().StartedAt)

	st := f.runToExpiry(t)
	assert.Equal(t, Expired, st.Reason)
	assert.Equal(t, t0.Add(5*time.Second), st.EndedAt)
	assert.Zero(t, st.Remaining)

	rec, err := f.log.Commit(ctx, "Run", "")
	require.NoError(t, err)
	sid := f.sess.Snapshot().ScheduleID
	assert.EqualValues(t, 0, rec.SerialNum)
	assert.Equal(t, sid+"0", rec.ID)
	assert.Equal(t, "Run", rec.Title)
	assert.Equal(t, "a@x.com", rec.AuthorEmail)
	assert.Equal(t, t0, rec.StartedAt)
	assert.Equal(t, t0.Add(5*time.Second), rec.EndedAt)

	assert.Equal(t, Idle, f.log.Status().Phase)
	assert.Equal(t, 5*time.Second, f.log.Status().Remaining)

	stored := f.storedRecords(t)
	require.Len(t, stored, 1)
	assert.Equal(t, "Run", stored[0].Title)
	assert.Equal(t, []store.ActivityRecord{rec}, f.sess.Snapshot().Records)
}

func TestDiscardLeavesLogUnchanged(t *testing.T) {
	f := newFixture(t)
	_, err := f.log.Configure(0, 0, 2)
	require.NoError(t, err)
	require.NoError(t, f.log.Start())
	f.runToExpiry(t)

	require.NoError(t, f.log.Discard())
	assert.Equal(t, Idle, f.log.Status().Phase)
	assert.Empty(t, f.storedRecords(t))
	assert.Empty(t, f.sess.Snapshot().Records)
}

func TestSequentialCommitsIncrementSerials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.log.Configure(0, 0, 1)
	require.NoError(t, err)
	sid := f.sess.Snapshot().ScheduleID

	for i := 0; i < 3; i++ {
		require.NoError(t, f.log.Start())
		f.runToExpiry(t)
		rec, err := f.log.Commit(ctx, fmt.Sprintf("run %d", i), "")
		require.NoError(t, err)
		assert.EqualValues(t, i, rec.SerialNum)
		assert.Equal(t, store.RecordID(sid, int64(i)), rec.ID)
	}
	assert.Len(t, f.storedRecords(t), 3)
	assert.Len(t, f.sess.Snapshot().Records, 3)
}

func TestStopNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	_, err := f.log.Configure(0, 1, 0)
	require.NoError(t, err)
	require.NoError(t, f.log.Start())

	require.NoError(t, f.log.RequestStop())
	assert.Equal(t, StopPending, f.log.Status().Phase)

	f.clock.Advance(time.Second)
	st := f.log.Tick()
	assert.Equal(t, StopPending, st.Phase)
	assert.Equal(t, 59*time.Second, st.Remaining, "countdown keeps running behind the gate")

	require.NoError(t, f.log.DeclineStop())
	st = f.log.Status()
	assert.Equal(t, Running, st.Phase)
	assert.Equal(t, NotStopped, st.Reason)

	require.NoError(t, f.log.RequestStop())
	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.log.ConfirmStop())
	st = f.log.Status()
	assert.Equal(t, Prompt, st.Phase)
	assert.Equal(t, UserRequested, st.Reason)
	assert.Equal(t, t0.Add(11*time.Second), st.EndedAt)
}

func TestExpiryClosesOpenGate(t *testing.T) {
	f := newFixture(t)
	_, err := f.log.Configure(0, 0, 2)
	require.NoError(t, err)
	require.NoError(t, f.log.Start())
	require.NoError(t, f.log.RequestStop())

	st := f.runToExpiry(t)
	assert.Equal(t, Expired, st.Reason)
	assert.ErrorIs(t, f.log.ConfirmStop(), ErrInvalidTransition)
	assert.ErrorIs(t, f.log.DeclineStop(), ErrInvalidTransition)
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.log.RequestStop(), ErrInvalidTransition)
	assert.ErrorIs(t, f.log.ConfirmStop(), ErrInvalidTransition)
	assert.ErrorIs(t, f.log.Discard(), ErrInvalidTransition)
	_, err := f.log.Commit(ctx, "x", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Idle, f.log.Tick().Phase)

	require.NoError(t, f.log.Start())
	assert.ErrorIs(t, f.log.Start(), ErrInvalidTransition)
	_, err = f.log.Configure(0, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	l := New(nil, nil)
	_, err = l.Configure(0, 0, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, l.Start(), ErrEmptyDuration)
}

func TestCommitBlankTitleIsUntitled(t *testing.T) {
	f := newFixture(t)
	_, err := f.log.Configure(0, 0, 1)
	require.NoError(t, err)
	require.NoError(t, f.log.Start())
	f.runToExpiry(t)

	rec, err := f.log.Commit(context.Background(), "   ", "some notes")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, rec.Title)
	assert.Equal(t, "some notes", rec.Notes)
}

func TestNilLoggerKeepsDefault(t *testing.T) {
	var l *Log
	require.NotPanics(t, func() { l = New(nil, nil, WithLogger(nil)) })
	require.NotNil(t, l.log)
	_, err := l.Configure(0, 0, 1)
	require.NoError(t, err)
	require.NoError(t, l.Start())
}

func TestCommitWithoutSessionStillReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.Logout(context.Background()))

	_, err := f.log.Configure(0, 0, 1)
	require.NoError(t, err)
	require.NoError(t, f.log.Start())
	f.runToExpiry(t)

	_, err = f.log.Commit(context.Background(), "Run", "")
	assert.ErrorIs(t, err, apperr.ErrConsistency)
	assert.Equal(t, Idle, f.log.Status().Phase)
}

func TestRecordValidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.log.Record(ctx, validate.RecordInput{Title: "x", StartedAt: t0, EndedAt: t0.Add(-time.Minute)})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.log.Record(ctx, validate.RecordInput{Title: "x", StartedAt: t0})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.storedRecords(t))

	rec, err := f.log.Record(ctx, validate.RecordInput{StartedAt: t0, EndedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, rec.Title)
	assert.EqualValues(t, 0, rec.SerialNum)
}

func TestConcurrentSessionsOnOneLogNeverCollide(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := f.signIn(t, "a@x.com", false)
	require.Equal(t, f.sess.Snapshot().ScheduleID, other.Snapshot().ScheduleID)
	logs := []*Log{f.log, New(other, f.st)}

	const perSession = 10
	var wg sync.WaitGroup
	errs := make(chan error, len(logs)*perSession)
	for _, l := range logs {
		wg.Add(1)
		go func(l *Log) {
			defer wg.Done()
			for i := 0; i < perSession; i++ {
				_, err := l.Record(ctx, validate.RecordInput{Title: "r", StartedAt: t0, EndedAt: t0})
				errs <- err
			}
		}(l)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored := f.storedRecords(t)
	require.Len(t, stored, len(logs)*perSession)
	for i, r := range stored {
		assert.EqualValues(t, i, r.SerialNum)
	}
}

func TestRunnerReportsPhaseChanges(t *testing.T) {
	l := New(nil, nil)
	_, err := l.Configure(0, 0, 2)
	require.NoError(t, err)
	require.NoError(t, l.Start())

	seen := make(chan Status, 4)
	r := &Runner{Log: l, Interval: time.Millisecond, OnPhase: func(st Status) { seen <- st }}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case st := <-seen:
		assert.Equal(t, Prompt, st.Phase)
		assert.Equal(t, Expired, st.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("runner never reported expiry")
	}
	cancel()
	<-done
}
