package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"schedlog/internal/apperr"
	"schedlog/internal/session"
	"schedlog/internal/store"
	"schedlog/internal/validate"

	"go.uber.org/zap"
)

type Phase int

const (
	Idle Phase = iota
	Running
	StopPending
	Prompt
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case StopPending:
		return "stop_pending"
	case Prompt:
		return "prompt"
	default:
		return "idle"
	}
}

// StopReason says why a countdown left Running. It is set on entry to Prompt.
type StopReason int

const (
	NotStopped StopReason = iota
	Expired
	UserRequested
)

func (r StopReason) String() string {
	switch r {
	case Expired:
		return "expired"
	case UserRequested:
		return "user_requested"
	default:
		return "none"
	}
}

const DefaultTitle = "Untitled"

var (
	ErrInvalidTransition = errors.New("invalid countdown transition")
	ErrEmptyDuration     = errors.New("countdown duration is zero")
)

// Duration is a clamped countdown configuration.
type Duration struct {
	Hours   int
	Minutes int
	Seconds int
}

// NewDuration clamps each field to its range and floors fractions.
func NewDuration(h, m, s float64) Duration {
	return Duration{
		Hours:   validate.CheckHour(h),
		Minutes: validate.CheckMinute(m),
		Seconds: validate.CheckSecond(s),
	}
}

func (d Duration) Total() time.Duration {
	return time.Duration(d.Hours*3600+d.Minutes*60+d.Seconds) * time.Second
}

func (d Duration) String() string {
	return fmt.Sprintf("%dh %dm %ds", d.Hours, d.Minutes, d.Seconds)
}

var DefaultDuration = Duration{Minutes: 3}

// Status is a copy of the countdown state.
type Status struct {
	Phase      Phase
	Reason     StopReason
	Configured Duration
	Remaining  time.Duration
	StartedAt  time.Time
	EndedAt    time.Time
}

// Identity is the session view the log appends on behalf of.
type Identity interface {
	Snapshot() session.State
	RecordAppended(rec store.ActivityRecord)
}

// Appender assigns serial numbers and stores a record atomically.
type Appender interface {
	AppendRecord(ctx context.Context, scheduleID string, d store.RecordDraft) (store.ActivityRecord, error)
}

// Log runs one countdown at a time and appends finished activities to the
// signed-in schedule.
type Log struct {
	id    Identity
	store Appender
	now   func() time.Time
	log   *zap.Logger

	mu  sync.Mutex
	cur Status
}

type Option func(*Log)

func WithClock(now func() time.Time) Option { return func(l *Log) { l.now = now } }

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.log = logger.Named("activity")
		}
	}
}

func New(id Identity, st Appender, opts ...Option) *Log {
	l := &Log{
		id:    id,
		store: st,
		now:   time.Now,
		log:   zap.NewNop(),
		cur:   Status{Configured: DefaultDuration, Remaining: DefaultDuration.Total()},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Log) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur
}

// Configure sets the countdown length. Only allowed while Idle.
func (l *Log) Configure(h, m, s float64) (Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur.Phase != Idle {
		return l.cur.Configured, ErrInvalidTransition
	}
	d := NewDuration(h, m, s)
	l.cur.Configured = d
	l.cur.Remaining = d.Total()
	return d, nil
}

func (l *Log) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur.Phase != Idle {
		return ErrInvalidTransition
	}
	if l.cur.Configured.Total() == 0 {
		return ErrEmptyDuration
	}
	l.cur = Status{
		Phase:      Running,
		Configured: l.cur.Configured,
		Remaining:  l.cur.Configured.Total(),
		StartedAt:  l.now().UTC(),
	}
	return nil
}

// Tick advances the countdown by one second. It keeps counting while the
// stop gate is open, and expiry closes the gate.
func (l *Log) Tick() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur.Phase != Running && l.cur.Phase != StopPending {
		return l.cur
	}
	l.cur.Remaining -= time.Second
	if l.cur.Remaining <= 0 {
		l.cur.Remaining = 0
		l.stop(Expired)
	}
	return l.cur
}

func (l *Log) RequestStop() error {
	return l.transition(Running, func() { l.cur.Phase = StopPending })
}

func (l *Log) DeclineStop() error {
	return l.transition(StopPending, func() { l.cur.Phase = Running })
}

func (l *Log) ConfirmStop() error {
	return l.transition(StopPending, func() { l.stop(UserRequested) })
}

// Discard drops the finished activity without storing it.
func (l *Log) Discard() error {
	return l.transition(Prompt, l.reset)
}

// Commit stores the finished activity. The countdown goes back to Idle
// whether or not the append succeeds.
func (l *Log) Commit(ctx context.Context, title, notes string) (store.ActivityRecord, error) {
	l.mu.Lock()
	if l.cur.Phase != Prompt {
		l.mu.Unlock()
		return store.ActivityRecord{}, ErrInvalidTransition
	}
	started, ended := l.cur.StartedAt, l.cur.EndedAt
	l.reset()
	l.mu.Unlock()

	return l.append(ctx, "commit", title, notes, started, ended)
}

// Record appends an activity timed elsewhere, such as by an HTTP client.
func (l *Log) Record(ctx context.Context, in validate.RecordInput) (store.ActivityRecord, error) {
	if err := validate.Record(in); err != nil {
		return store.ActivityRecord{}, apperr.Validation("record", "%s", err.Error())
	}
	return l.append(ctx, "record", in.Title, in.Notes, in.StartedAt, in.EndedAt)
}

func (l *Log) append(ctx context.Context, op, title, notes string, started, ended time.Time) (store.ActivityRecord, error) {
	st := l.id.Snapshot()
	if st.Phase != session.Authenticated || st.ScheduleID == "" {
		return store.ActivityRecord{}, apperr.Consistency(op, "no signed-in account with a schedule")
	}
	if validate.Blank(title) {
		title = DefaultTitle
	}

	rec, err := l.store.AppendRecord(ctx, st.ScheduleID, store.RecordDraft{
		AuthorEmail: st.Email,
		Title:       title,
		Notes:       notes,
		StartedAt:   started,
		EndedAt:     ended,
	})
	if errors.Is(err, store.ErrNotFound) {
		l.log.Error("append to missing schedule", zap.String("schedule", st.ScheduleID))
		return store.ActivityRecord{}, apperr.Consistency(op, "schedule %s is missing", st.ScheduleID)
	}
	if err != nil {
		l.log.Error("append failed", zap.String("schedule", st.ScheduleID), zap.Error(err))
		return store.ActivityRecord{}, apperr.Transaction(op, err)
	}

	l.id.RecordAppended(rec)
	l.log.Debug("record appended", zap.String("id", rec.ID), zap.Int64("serial", rec.SerialNum))
	return rec, nil
}

func (l *Log) transition(from Phase, fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur.Phase != from {
		return ErrInvalidTransition
	}
	fn()
	return nil
}

// stop and reset expect l.mu to be held.
func (l *Log) stop(reason StopReason) {
	l.cur.Phase = Prompt
	l.cur.Reason = reason
	l.cur.EndedAt = l.now().UTC()
}

func (l *Log) reset() {
	l.cur = Status{Configured: l.cur.Configured, Remaining: l.cur.Configured.Total()}
}
