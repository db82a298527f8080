package types

import (
	"fmt"
	"time"
)

// ScanStatus is the lifecycle state of a scan run
type ScanStatus string

const (
	ScanQueued    ScanStatus = "queued"
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanPartial   ScanStatus = "partial"
	ScanFailed    ScanStatus = "failed"
)

// Terminal reports whether no further transition is allowed
func (s ScanStatus) Terminal() bool {
	return s == ScanCompleted || s == ScanPartial || s == ScanFailed
}

// ScanUnit is one (account, region, family) slice, processed
// independently for concurrency and failure isolation
type ScanUnit struct {
	Account string `json:"account"`
	Region  string `json:"region"`
	Family  Family `json:"family"`
}

// String implements fmt.Stringer
func (u ScanUnit) String() string {
	return fmt.Sprintf("%s/%s/%s", u.Account, u.Region, u.Family)
}

// UnitStatus is the outcome of one scan unit
type UnitStatus string

const (
	UnitCompleted UnitStatus = "completed"
	UnitFailed    UnitStatus = "failed"
	UnitAborted   UnitStatus = "aborted"
)

// UnitOutcome is one line of the scan manifest: what happened to a
// unit and why, so a partial run is still explainable
type UnitOutcome struct {
	Unit      ScanUnit      `json:"unit"`
	Status    UnitStatus    `json:"status"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts"`
	Resources int           `json:"resources"`
	Findings  int           `json:"findings"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// ScanRun tracks one scan through its lifecycle. Transitions only
// move forward; terminal states never change.
type ScanRun struct {
	ScanID      string        `json:"scan_id"`
	Accounts    []string      `json:"accounts"`
	Regions     []string      `json:"regions"`
	Families    []Family      `json:"families"`
	Status      ScanStatus    `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Units       []UnitOutcome `json:"units"`
}

var scanTransitions = map[ScanStatus][]ScanStatus{
	ScanQueued:  {ScanRunning, ScanFailed},
	ScanRunning: {ScanCompleted, ScanPartial, ScanFailed},
}

// Transition advances the run state, rejecting anything but a
// monotonic forward move
func (r *ScanRun) Transition(next ScanStatus) error {
	for _, allowed := range scanTransitions[r.Status] {
		if next == allowed {
			r.Status = next
			return nil
		}
	}
	return fmt.Errorf("invalid scan transition %s -> %s", r.Status, next)
}

// Summarize derives the terminal status from unit outcomes: failed if
// nothing completed, partial if some units failed, completed otherwise
func (r *ScanRun) Summarize() ScanStatus {
	var completed, failed int
	for _, u := range r.Units {
		switch u.Status {
		case UnitCompleted:
			completed++
		case UnitFailed, UnitAborted:
			failed++
		}
	}
	switch {
	case completed == 0 && failed > 0:
		return ScanFailed
	case failed > 0:
		return ScanPartial
	default:
		return ScanCompleted
	}
}
