package models

import (
	"time"
)

type CycleReport struct {
	CycleID    string         `json:"cycle_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceReport `json:"sources"`
}

type SourceReport struct {
	SourceID    string `json:"lab_id"`
	Success     bool   `json:"success"`
	ErrorType   string `json:"error_type,omitempty"`
	Error       string `json:"error,omitempty"`
	Fetched     int    `json:"fetched"`
	Inserted    int    `json:"inserted"`
	Updated     int    `json:"updated"`
	Deactivated int    `json:"deactivated"`
}

// Failed returns the reports of sources that did not reconcile.
func (r *CycleReport) Failed() []SourceReport {
	var failed []SourceReport
	for _, s := range r.Sources {
		if !s.Success {
			failed = append(failed, s)
		}
	}
	return failed
}
