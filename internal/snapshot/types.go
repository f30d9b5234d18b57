// Package snapshot builds and stores compact, read-optimized projections of
// a user's goal state.
//
// The compact field names are a wire contract with size-sensitive
// consumers and must not change. Verbose is the same content under full
// names.
package snapshot

import "time"

// TimeLayout is the timestamp format used inside snapshots.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Snapshot is the compact projection.
type Snapshot struct {
	TS         string         `json:"ts"`
	Cycle      *Cycle         `json:"c"`
	Objectives []Objective    `json:"o"`
	KeyResults []KeyResult    `json:"k"`
	Risky      []RiskyKR      `json:"risky"`
	Blocked    []BlockedTask  `json:"blocked"`
	Stats      Stats          `json:"stats"`
	Priorities []PriorityTask `json:"priorities"`
}

// Cycle summarizes the scoped cycle.
type Cycle struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Elapsed float64 `json:"elapsed"`
}

// Objective is one active objective.
type Objective struct {
	ID      string  `json:"id"`
	T       string  `json:"t"`
	P       float64 `json:"p"`
	R       float64 `json:"r"`
	Type    string  `json:"type"`
	Horizon string  `json:"horizon"`
}

// KeyResult is one key result under a listed objective.
type KeyResult struct {
	ID        string   `json:"id"`
	OID       string   `json:"oid"`
	T         string   `json:"t"`
	P         float64  `json:"p"`
	R         float64  `json:"r"`
	V         *float64 `json:"v"`
	Type      string   `json:"type"`
	Target    *string  `json:"target"`
	Current   *string  `json:"current"`
	DaysLeft  *int     `json:"days_left"`
	TaskCount int      `json:"task_count"`
	DoneCount int      `json:"done_count"`
}

// RiskyKR is a key result above the risk threshold.
type RiskyKR struct {
	ID  string  `json:"id"`
	T   string  `json:"t"`
	R   float64 `json:"r"`
	Gap float64 `json:"gap"`
}

// BlockedTask is a not-done task flagged as blocking.
type BlockedTask struct {
	ID string `json:"id"`
	T  string `json:"t"`
}

// Stats holds task counters.
type Stats struct {
	TotalTasks    int `json:"total_tasks"`
	Todo          int `json:"todo"`
	Doing         int `json:"doing"`
	Done          int `json:"done"`
	Overdue       int `json:"overdue"`
	UnlinkedTasks int `json:"unlinked_tasks"`
}

// PriorityTask is one of the top not-done tasks.
type PriorityTask struct {
	ID       string  `json:"id"`
	T        string  `json:"t"`
	PS       float64 `json:"ps"`
	KRR      float64 `json:"kr_r"`
	Status   string  `json:"status"`
	Due      *string `json:"due"`
	Blocking bool    `json:"blocking"`
}

// FormatTime renders t in TimeLayout (UTC, millisecond precision).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
