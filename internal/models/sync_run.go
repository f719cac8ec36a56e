package models

import (
	"context"
	"time"
)

// CycleTrigger records what started a sync cycle.
type CycleTrigger string

const (
	TriggerSchedule CycleTrigger = "schedule"
	TriggerManual   CycleTrigger = "manual"
)

// OutcomeKind classifies a per-account failure.
type OutcomeKind string

const (
	OutcomeNotFound  OutcomeKind = "not_found"
	OutcomeTransient OutcomeKind = "transient"
	OutcomeProtocol  OutcomeKind = "protocol"
	OutcomeStore     OutcomeKind = "store"
	OutcomeInternal  OutcomeKind = "internal"
)

// BatchOutcome is the result of one account's fetch+write attempt within a cycle.
// Outcomes are never persisted.
type BatchOutcome struct {
	AccountID string         `json:"account_id"`
	Handle    string         `json:"handle"`
	Success   bool           `json:"success"`
	Snapshot  *StatsSnapshot `json:"snapshot,omitempty"`
	Kind      OutcomeKind    `json:"error_kind,omitempty"`
	Error     string         `json:"error,omitempty"`
	Attempts  int            `json:"attempts"`
}

// BatchReport is the ordered outcome list of one Batch Synchronizer pass.
type BatchReport struct {
	Outcomes   []BatchOutcome `json:"outcomes"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Succeeded counts successful outcomes.
func (r BatchReport) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// Failed counts failed outcomes.
func (r BatchReport) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// SyncRun is the structured summary emitted after every cycle.
type SyncRun struct {
	ID             string         `json:"id"`
	Trigger        CycleTrigger   `json:"trigger"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	RosterSize     int            `json:"roster_size"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	FailuresByKind map[string]int `json:"failures_by_kind,omitempty"`
	Inactive       []string       `json:"inactive"`
	Error          string         `json:"error,omitempty"`
}

// DurationMs returns the wall time of the cycle in milliseconds.
func (r SyncRun) DurationMs() int64 {
	return r.FinishedAt.Sub(r.StartedAt).Milliseconds()
}

// SyncRunRepository keeps cycle summaries.
type SyncRunRepository interface {
	Record(ctx context.Context, run SyncRun) error
	List(ctx context.Context, limit int) ([]SyncRun, error)
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}
