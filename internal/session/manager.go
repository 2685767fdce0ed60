package session

import (
	"context"
	"errors"
	"slices"
	"sync"

	"schedlog/internal/apperr"
	"schedlog/internal/identity"
	"schedlog/internal/store"
	"schedlog/internal/validate"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IdentityProvider is the identity client contract the manager needs.
type IdentityProvider interface {
	CreateCredential(ctx context.Context, email, password string) (identity.Session, error)
	PasswordLogin(ctx context.Context, email, password string) (identity.Session, error)
	FederatedLogin(ctx context.Context) (identity.Session, error)
	DeleteCredential(ctx context.Context, s identity.Session) error
	SetPersistence(p identity.Persistence) error
	SignOut(ctx context.Context) error
	Current() (identity.Session, bool)
	OnSessionChange(fn func(s identity.Session, active bool)) func()
}

// Store is the transactional store contract the manager needs.
type Store interface {
	RunAtomic(ctx context.Context, fn func(tx store.Tx) error) error
	Account(ctx context.Context, uid string) (store.Account, error)
	Schedule(ctx context.Context, id string) (store.ScheduleLog, error)
	SetDarkMode(ctx context.Context, uid string, v bool) error
	SetSharing(ctx context.Context, scheduleID string, v bool) error
}

// Reconciler takes over credentials the manager could not clean up itself.
type Reconciler interface {
	EnqueueCredentialPurge(ctx context.Context, uid, reason string) error
}

var errScheduleMismatch = errors.New("account links a different schedule")

// Manager owns the local authenticated-identity state. Operations from one
// session are expected to run one at a time; snapshots may be read from any
// goroutine.
type Manager struct {
	idp   IdentityProvider
	store Store
	recon Reconciler
	log   *zap.Logger
	newID func() string

	mu      sync.Mutex
	state   State
	subs    map[int]func(Event)
	nextSub int

	unwatch func()
}

// NewManager wires the manager to idp. Every identity change triggers
// RestoreSession. recon may be nil.
func NewManager(idp IdentityProvider, st Store, recon Reconciler, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		idp:   idp,
		store: st,
		recon: recon,
		log:   logger.Named("session"),
		newID: uuid.NewString,
		subs:  map[int]func(Event){},
	}
	m.unwatch = idp.OnSessionChange(func(identity.Session, bool) {
		if err := m.RestoreSession(context.Background()); err != nil {
			m.log.Warn("restore after identity change failed", zap.Error(err))
		}
	})
	return m
}

// Close stops listening to identity changes.
func (m *Manager) Close() {
	if m.unwatch != nil {
		m.unwatch()
	}
}

// Start runs the process-start restoration.
func (m *Manager) Start(ctx context.Context) error {
	return m.RestoreSession(ctx)
}

func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn for every published event and returns a func that
// unregisters it.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) Signup(ctx context.Context, email, password, confirmPassword string) error {
	const op = "signup"
	if err := validate.Signup(validate.SignupInput{Email: email, Password: password, ConfirmPassword: confirmPassword}); err != nil {
		return apperr.Validation(op, "%s", err.Error())
	}

	cred, err := m.idp.CreateCredential(ctx, email, password)
	if err != nil {
		m.log.Warn("credential creation failed", zap.Error(err))
		return apperr.AuthProvider(op, err)
	}
	if cred.Email != "" {
		email = cred.Email
	}

	var scheduleID string
	err = m.store.RunAtomic(ctx, func(tx store.Tx) error {
		id, err := m.createPair(tx, cred.UID, email)
		scheduleID = id
		return err
	})
	if err != nil {
		m.log.Error("signup transaction failed", zap.String("uid", cred.UID), zap.Error(err))
		m.compensate(ctx, cred, "signup transaction failed")
		return apperr.Transaction(op, err)
	}

	m.set(State{
		Phase:         Authenticated,
		UID:           cred.UID,
		ScheduleID:    scheduleID,
		Email:         email,
		Records:       []store.ActivityRecord{},
		RecordsLoaded: true,
	}, NavApp)
	return nil
}

func (m *Manager) Login(ctx context.Context, email, password string, remember bool) error {
	const op = "login"
	if err := validate.Login(validate.LoginInput{Email: email, Password: password}); err != nil {
		return apperr.Validation(op, "%s", err.Error())
	}
	if err := m.idp.SetPersistence(identity.PersistenceFor(remember)); err != nil {
		return apperr.AuthProvider(op, err)
	}
	if _, err := m.idp.PasswordLogin(ctx, email, password); err != nil {
		m.log.Info("password login rejected", zap.Error(err))
		return apperr.AuthProvider(op, err)
	}
	m.publish(NavApp)
	return nil
}

// FederatedSignin logs in through the federated provider and creates the
// account pair on first use. The existence check and the create share one
// transaction; a duplicate-key commit means a concurrent first login won,
// and the retry observes its account.
func (m *Manager) FederatedSignin(ctx context.Context, remember bool) error {
	const op = "federated signin"
	if err := m.idp.SetPersistence(identity.PersistenceFor(remember)); err != nil {
		return apperr.AuthProvider(op, err)
	}
	sess, err := m.idp.FederatedLogin(ctx)
	if err != nil {
		m.log.Info("federated login rejected", zap.Error(err))
		return apperr.AuthProvider(op, err)
	}

	var created bool
	var scheduleID string
	attempt := func() error {
		return m.store.RunAtomic(ctx, func(tx store.Tx) error {
			created = false
			_, err := tx.Account(sess.UID)
			if err == nil {
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			id, err := m.createPair(tx, sess.UID, sess.Email)
			if err != nil {
				return err
			}
			created, scheduleID = true, id
			return nil
		})
	}
	err = attempt()
	if errors.Is(err, store.ErrConflict) {
		err = attempt()
	}
	if err != nil {
		m.log.Error("federated signin transaction failed", zap.String("uid", sess.UID), zap.Error(err))
		// the credential may predate this call, so only the worker, which
		// checks for an account first, may delete it
		m.enqueuePurge(ctx, sess.UID, "federated signin transaction failed")
		return apperr.Transaction(op, err)
	}

	if created {
		m.set(State{
			Phase:         Authenticated,
			UID:           sess.UID,
			ScheduleID:    scheduleID,
			Email:         sess.Email,
			Records:       []store.ActivityRecord{},
			RecordsLoaded: true,
		}, NavApp)
		return nil
	}
	if err := m.RestoreSession(ctx); err != nil {
		return err
	}
	m.publish(NavApp)
	return nil
}

func (m *Manager) Logout(ctx context.Context) error {
	if err := m.idp.SignOut(ctx); err != nil {
		return apperr.AuthProvider("logout", err)
	}
	m.set(State{}, NavLogin)
	return nil
}

// DeleteAccount removes the account pair atomically, then the credential.
// A credential that cannot be deleted is handed to the reconciler.
func (m *Manager) DeleteAccount(ctx context.Context) error {
	const op = "delete account"
	st := m.Snapshot()
	sess, ok := m.idp.Current()
	if st.Phase != Authenticated || st.ScheduleID == "" || !ok || sess.UID != st.UID {
		return apperr.Consistency(op, "no signed-in account with a schedule")
	}

	err := m.store.RunAtomic(ctx, func(tx store.Tx) error {
		acct, err := tx.Account(st.UID)
		if err != nil {
			return err
		}
		if acct.ScheduleID != st.ScheduleID {
			return errScheduleMismatch
		}
		if err := tx.DeleteAccount(st.UID); err != nil {
			return err
		}
		return tx.DeleteSchedule(st.ScheduleID)
	})
	switch {
	case errors.Is(err, errScheduleMismatch):
		return apperr.Consistency(op, "account links schedule other than %s", st.ScheduleID)
	case errors.Is(err, store.ErrNotFound):
		return apperr.Consistency(op, "account or schedule is missing")
	case err != nil:
		m.log.Error("delete transaction failed", zap.String("uid", st.UID), zap.Error(err))
		return apperr.Transaction(op, err)
	}

	var result error
	if err := m.idp.DeleteCredential(ctx, sess); err != nil {
		m.log.Error("credential deletion failed after account delete", zap.String("uid", sess.UID), zap.Error(err))
		if !m.enqueuePurge(ctx, sess.UID, "credential delete failed") {
			result = apperr.AuthProvider(op, err)
		}
		if err := m.idp.SignOut(ctx); err != nil {
			m.log.Warn("sign out after failed credential delete", zap.Error(err))
		}
	}

	m.set(State{}, NavLogin)
	return result
}

// RestoreSession hydrates local state from the store for the identity the
// provider currently holds. Fields the session already knows are kept, and
// the log is fetched only while it has not been loaded.
func (m *Manager) RestoreSession(ctx context.Context) error {
	const op = "restore session"
	sess, ok := m.idp.Current()
	if !ok {
		return nil
	}

	prev := m.Snapshot()
	m.apply(func(s *State) {
		if s.UID != "" && s.UID != sess.UID {
			*s = State{}
		}
		if s.Phase == LoggedOut {
			s.Phase = Restoring
		}
	}, NavNone)

	acct, err := m.store.Account(ctx, sess.UID)
	if err != nil {
		m.apply(func(s *State) {
			if s.Phase == Restoring {
				s.Phase = LoggedOut
			}
		}, NavNone)
		if errors.Is(err, store.ErrNotFound) {
			// credential without an account yet, e.g. mid-signup
			return nil
		}
		return apperr.Transaction(op, err)
	}

	var loaded bool
	m.apply(func(s *State) {
		s.Phase = Authenticated
		s.UID = acct.UID
		if s.ScheduleID == "" {
			s.ScheduleID = acct.ScheduleID
		}
		if s.Email == "" {
			s.Email = acct.Email
		}
		s.DarkMode = acct.DarkMode
		loaded = s.RecordsLoaded
	}, NavNone)
	if loaded {
		return nil
	}

	l, err := m.store.Schedule(ctx, acct.ScheduleID)
	if errors.Is(err, store.ErrNotFound) {
		m.log.Error("account links a missing schedule", zap.String("uid", acct.UID), zap.String("schedule", acct.ScheduleID))
		return apperr.Consistency(op, "schedule %s is missing", acct.ScheduleID)
	}
	if err != nil {
		return apperr.Transaction(op, err)
	}
	m.apply(func(s *State) {
		if s.RecordsLoaded {
			return
		}
		s.Records = nonNil(l.Records)
		s.Sharing = l.Sharing
		s.RecordsLoaded = true
	}, NavNone)

	if prev.Phase != Authenticated {
		m.log.Debug("session restored", zap.String("uid", acct.UID))
	}
	return nil
}

// Refresh re-reads the schedule log, picking up records other sessions
// appended to a shared log.
func (m *Manager) Refresh(ctx context.Context) error {
	const op = "refresh"
	st := m.Snapshot()
	if st.Phase != Authenticated || st.ScheduleID == "" {
		return apperr.Consistency(op, "no signed-in account with a schedule")
	}
	l, err := m.store.Schedule(ctx, st.ScheduleID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Consistency(op, "schedule %s is missing", st.ScheduleID)
	}
	if err != nil {
		return apperr.Transaction(op, err)
	}
	m.apply(func(s *State) {
		s.Records = nonNil(l.Records)
		s.Sharing = l.Sharing
		s.RecordsLoaded = true
	}, NavNone)
	return nil
}

func (m *Manager) SetDarkMode(ctx context.Context, v bool) error {
	const op = "set dark mode"
	st := m.Snapshot()
	if st.Phase != Authenticated {
		return apperr.Consistency(op, "not signed in")
	}
	if err := m.store.SetDarkMode(ctx, st.UID, v); err != nil {
		return storeErr(op, err)
	}
	m.apply(func(s *State) { s.DarkMode = v }, NavNone)
	return nil
}

func (m *Manager) SetSharing(ctx context.Context, v bool) error {
	const op = "set sharing"
	st := m.Snapshot()
	if st.Phase != Authenticated || st.ScheduleID == "" {
		return apperr.Consistency(op, "no signed-in account with a schedule")
	}
	if err := m.store.SetSharing(ctx, st.ScheduleID, v); err != nil {
		return storeErr(op, err)
	}
	m.apply(func(s *State) { s.Sharing = v }, NavNone)
	return nil
}

// RecordAppended merges a committed record into the cached log. Nothing is
// cached before the log has been loaded.
func (m *Manager) RecordAppended(rec store.ActivityRecord) {
	m.apply(func(s *State) {
		if !s.RecordsLoaded || rec.ScheduleID != s.ScheduleID {
			return
		}
		for _, r := range s.Records {
			if r.ID == rec.ID {
				return
			}
		}
		s.Records = append(slices.Clone(s.Records), rec)
		slices.SortFunc(s.Records, func(a, b store.ActivityRecord) int {
			switch {
			case a.SerialNum < b.SerialNum:
				return -1
			case a.SerialNum > b.SerialNum:
				return 1
			}
			return 0
		})
	}, NavNone)
}

func (m *Manager) createPair(tx store.Tx, uid, email string) (string, error) {
	id := m.newID()
	if err := tx.PutAccount(store.Account{UID: uid, Email: email, ScheduleID: id}); err != nil {
		return "", err
	}
	if err := tx.PutSchedule(store.ScheduleLog{ID: id, UID: uid}); err != nil {
		return "", err
	}
	return id, nil
}

// compensate deletes a credential created moments ago whose account pair
// could not be written. If that fails the reconciler retries later.
func (m *Manager) compensate(ctx context.Context, cred identity.Session, reason string) {
	err := m.idp.DeleteCredential(ctx, cred)
	if err == nil {
		m.log.Info("orphaned credential removed", zap.String("uid", cred.UID))
		return
	}
	m.log.Warn("compensating credential delete failed", zap.String("uid", cred.UID), zap.Error(err))
	m.enqueuePurge(ctx, cred.UID, reason)
	if err := m.idp.SignOut(ctx); err != nil {
		m.log.Warn("sign out of orphaned credential failed", zap.Error(err))
	}
}

func (m *Manager) enqueuePurge(ctx context.Context, uid, reason string) bool {
	if m.recon == nil {
		m.log.Error("no reconciler, credential left dangling", zap.String("uid", uid))
		return false
	}
	if err := m.recon.EnqueueCredentialPurge(ctx, uid, reason); err != nil {
		m.log.Error("enqueue credential purge failed", zap.String("uid", uid), zap.Error(err))
		return false
	}
	return true
}

func (m *Manager) set(s State, nav Nav) {
	m.apply(func(cur *State) { *cur = s }, nav)
}

func (m *Manager) apply(fn func(*State), nav Nav) {
	m.mu.Lock()
	fn(&m.state)
	m.mu.Unlock()
	m.publish(nav)
}

func (m *Manager) publish(nav Nav) {
	m.mu.Lock()
	ev := Event{State: m.state.clone(), Nav: nav}
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Consistency(op, "linked record is missing")
	}
	return apperr.Transaction(op, err)
}

func nonNil(rs []store.ActivityRecord) []store.ActivityRecord {
	if rs == nil {
		return []store.ActivityRecord{}
	}
	return rs
}
