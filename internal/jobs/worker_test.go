package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"schedlog/internal/identity"
	"schedlog/internal/jobs"
	"schedlog/internal/store"
	"schedlog/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type failingPurger struct{ err error }

func (f failingPurger) Purge(context.Context, string, func(*gorm.DB, []identity.IdentitySession) (bool, error)) (bool, error) {
	return false, f.err
}

func newWorker(t *testing.T, gdb *gorm.DB, p jobs.CredentialPurger) (*jobs.Worker, *jobs.Repo) {
	repo := &jobs.Repo{DB: gdb}
	return &jobs.Worker{
		ID:          "worker-test",
		Repo:        repo,
		Credentials: p,
		Logger:      zaptest.NewLogger(t),
	}, repo
}

func loadJob(t *testing.T, gdb *gorm.DB) jobs.Job {
	var j jobs.Job
	require.NoError(t, gdb.First(&j).Error)
	return j
}

func TestPurgeDeletesOrphanedCredential(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	auth := testutil.NewAuthority(gdb)
	s, err := auth.Register(ctx, "a@x.com", "pw", identity.SessionScoped)
	require.NoError(t, err)

	w, repo := newWorker(t, gdb, auth)
	require.NoError(t, repo.EnqueueCredentialPurge(ctx, s.UID, "signup transaction failed"))

	found, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, found)

	ok, err := auth.Exists(ctx, s.UID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, jobs.StatusDone, loadJob(t, gdb).Status)

	found, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPurgeSkipsWhenAccountExists(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	auth := testutil.NewAuthority(gdb)
	s, err := auth.Register(ctx, "a@x.com", "pw", identity.SessionScoped)
	require.NoError(t, err)
	require.NoError(t, store.New(gdb).RunAtomic(ctx, func(tx store.Tx) error {
		if err := tx.PutAccount(store.Account{UID: s.UID, ScheduleID: "s1"}); err != nil {
			return err
		}
		return tx.PutSchedule(store.ScheduleLog{ID: "s1", UID: s.UID})
	}))

	w, repo := newWorker(t, gdb, auth)
	require.NoError(t, repo.EnqueueCredentialPurge(ctx, s.UID, "test"))
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)

	ok, err := auth.Exists(ctx, s.UID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, jobs.StatusDone, loadJob(t, gdb).Status)
}

func TestPurgeSkipsCredentialSignedInAfterEnqueue(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	auth := testutil.NewAuthority(gdb)
	s, err := auth.Register(ctx, "a@x.com", "pw", identity.SessionScoped)
	require.NoError(t, err)

	w, repo := newWorker(t, gdb, auth)
	require.NoError(t, repo.EnqueueCredentialPurge(ctx, s.UID, "signup transaction failed"))

	// a new signin is under way and has not created its account yet
	auth.Now = func() time.Time { return time.Now().Add(time.Minute) }
	_, err = auth.Authenticate(ctx, "a@x.com", "pw", identity.SessionScoped)
	require.NoError(t, err)

	_, err = w.RunOnce(ctx)
	require.NoError(t, err)

	ok, err := auth.Exists(ctx, s.UID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, jobs.StatusDone, loadJob(t, gdb).Status)
}

func TestPurgeChecksAccountInsideTransaction(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	auth := testutil.NewAuthority(gdb)
	s, err := auth.Register(ctx, "a@x.com", "pw", identity.SessionScoped)
	require.NoError(t, err)

	// the account commits after the job is claimed but before the check
	racing := purgeFunc(func(ctx context.Context, uid string, keep func(*gorm.DB, []identity.IdentitySession) (bool, error)) (bool, error) {
		return auth.Purge(ctx, uid, func(tx *gorm.DB, sessions []identity.IdentitySession) (bool, error) {
			if err := tx.Create(&store.Account{UID: uid, ScheduleID: "s1"}).Error; err != nil {
				return false, err
			}
			return keep(tx, sessions)
		})
	})
	w, repo := newWorker(t, gdb, racing)
	require.NoError(t, repo.EnqueueCredentialPurge(ctx, s.UID, "test"))

	_, err = w.RunOnce(ctx)
	require.NoError(t, err)

	ok, err := auth.Exists(ctx, s.UID)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = store.New(gdb).Account(ctx, s.UID)
	assert.NoError(t, err)
}

type purgeFunc func(context.Context, string, func(*gorm.DB, []identity.IdentitySession) (bool, error)) (bool, error)

func (f purgeFunc) Purge(ctx context.Context, uid string, keep func(*gorm.DB, []identity.IdentitySession) (bool, error)) (bool, error) {
	return f(ctx, uid, keep)
}

func TestPurgeMissingCredentialIsDone(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	w, repo := newWorker(t, gdb, testutil.NewAuthority(gdb))

	require.NoError(t, repo.EnqueueCredentialPurge(ctx, "ghost", "test"))
	_, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusDone, loadJob(t, gdb).Status)
}

func TestPurgeFailureIsRetriedWithBackoff(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	w, repo := newWorker(t, gdb, failingPurger{err: errors.New("provider down")})

	require.NoError(t, repo.EnqueueCredentialPurge(ctx, "u1", "test"))
	_, err := w.RunOnce(ctx)
	require.NoError(t, err)

	j := loadJob(t, gdb)
	assert.Equal(t, jobs.StatusPending, j.Status)
	assert.Equal(t, 1, j.Attempts)
	require.NotNil(t, j.LastError)
	assert.Contains(t, *j.LastError, "provider down")
	assert.Nil(t, j.LockedBy)

	// not due yet
	found, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPurgeGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	w, repo := newWorker(t, gdb, failingPurger{err: errors.New("provider down")})

	require.NoError(t, repo.EnqueueCredentialPurge(ctx, "u1", "test"))
	require.NoError(t, gdb.Model(&jobs.Job{}).Where("uid = ?", "u1").Update("attempts", 7).Error)

	_, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, loadJob(t, gdb).Status)
}

func TestUnknownJobTypeFails(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	w, repo := newWorker(t, gdb, failingPurger{})

	require.NoError(t, repo.EnqueueCredentialPurge(ctx, "u1", "test"))
	require.NoError(t, gdb.Model(&jobs.Job{}).Where("uid = ?", "u1").Update("type", "MYSTERY").Error)

	_, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, loadJob(t, gdb).Status)
}
