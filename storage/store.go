// Package storage persists attribution results.
package storage

import (
	"context"
	"time"
)

// Record is one persisted attribution run: an (N, C, L) array keyed by
// sequence identity.
type Record struct {
	SchemaVersion int       `json:"schema_version"`
	CodecVersion  int       `json:"codec_version"`
	RunID         string    `json:"run_id"`
	Key           string    `json:"key"`
	Method        string    `json:"method"`
	IDs           []string  `json:"ids"`
	Shape         []int     `json:"shape"`
	CreatedAt     time.Time `json:"created_at"`
	// Data is stored separately from the JSON metadata.
	Data []float64 `json:"-"`
}

// RunSummary describes a stored record without its data.
type RunSummary struct {
	RunID     string
	Key       string
	Method    string
	Sequences int
	CreatedAt time.Time
}

// Store defines the persistence operations for attribution records.
type Store interface {
	Init(ctx context.Context) error
	SaveRecord(ctx context.Context, record Record) error
	GetRecord(ctx context.Context, runID string) (Record, bool, error)
	ListRuns(ctx context.Context) ([]RunSummary, error)
}

func summarize(r Record) RunSummary {
	return RunSummary{RunID: r.RunID, Key: r.Key, Method: r.Method, Sequences: len(r.IDs), CreatedAt: r.CreatedAt}
}
