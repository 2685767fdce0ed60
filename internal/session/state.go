package session

import (
	"slices"

	"schedlog/internal/store"
)

type Phase int

const (
	LoggedOut Phase = iota
	Restoring
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Restoring:
		return "restoring"
	case Authenticated:
		return "authenticated"
	default:
		return "logged_out"
	}
}

// Nav tells a surface where to go after an operation.
type Nav int

const (
	NavNone Nav = iota
	NavApp
	NavLogin
)

func (n Nav) String() string {
	switch n {
	case NavApp:
		return "app"
	case NavLogin:
		return "login"
	default:
		return "none"
	}
}

// State is an immutable snapshot of the local session. RecordsLoaded
// separates "log not fetched yet" from "log fetched and empty".
type State struct {
	Phase         Phase
	UID           string
	ScheduleID    string
	Email         string
	DarkMode      bool
	Sharing       bool
	Records       []store.ActivityRecord
	RecordsLoaded bool
}

func (s State) clone() State {
	s.Records = slices.Clone(s.Records)
	return s
}

// Event is published after every state change.
type Event struct {
	State State
	Nav   Nav
}

// View is the wire and print form of a State.
type View struct {
	Phase         string                 `json:"phase" yaml:"phase"`
	UID           string                 `json:"uid,omitempty" yaml:"uid,omitempty"`
	ScheduleID    string                 `json:"schedule_id,omitempty" yaml:"schedule_id,omitempty"`
	Email         string                 `json:"email,omitempty" yaml:"email,omitempty"`
	DarkMode      bool                   `json:"dark_mode" yaml:"dark_mode"`
	Sharing       bool                   `json:"sharing" yaml:"sharing"`
	Records       []store.ActivityRecord `json:"records" yaml:"records"`
	RecordsLoaded bool                   `json:"records_loaded" yaml:"records_loaded"`
}

func (s State) View() View {
	recs := slices.Clone(s.Records)
	if recs == nil {
		recs = []store.ActivityRecord{}
	}
	return View{
		Phase:         s.Phase.String(),
		UID:           s.UID,
		ScheduleID:    s.ScheduleID,
		Email:         s.Email,
		DarkMode:      s.DarkMode,
		Sharing:       s.Sharing,
		Records:       recs,
		RecordsLoaded: s.RecordsLoaded,
	}
}
