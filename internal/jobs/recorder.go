// Package jobs keeps a history of conversion runs.
package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for an ID.
var ErrNotFound = errors.New("job not found")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Record is one conversion run.
type Record struct {
	ID          string     `json:"id" firestore:"id"`
	RequestID   string     `json:"request_id,omitempty" firestore:"requestId"`
	FileName    string     `json:"file_name" firestore:"fileName"`
	ContentType string     `json:"content_type" firestore:"contentType"`
	Status      Status     `json:"status" firestore:"status"`
	PageCount   int        `json:"page_count" firestore:"pageCount"`
	Error       string     `json:"error,omitempty" firestore:"errorDetails"`
	Bytes       int64      `json:"bytes" firestore:"bytes"`
	OutputURI   string     `json:"output_uri,omitempty" firestore:"outputUri"`
	CreatedAt   time.Time  `json:"created_at" firestore:"createdAt"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" firestore:"finishedAt"`
}

// Outcome is what Finish records about a completed run.
type Outcome struct {
	Status    Status
	PageCount int
	Error     string
	OutputURI string
}

// Recorder persists job records.
type Recorder interface {
	Start(ctx context.Context, rec Record) error
	Finish(ctx context.Context, id string, out Outcome) error
	Get(ctx context.Context, id string) (*Record, error)
	Close() error
}

// NopRecorder records nothing.
type NopRecorder struct{}

func (NopRecorder) Start(context.Context, Record) error          { return nil }
func (NopRecorder) Finish(context.Context, string, Outcome) error { return nil }
func (NopRecorder) Get(context.Context, string) (*Record, error) { return nil, ErrNotFound }
func (NopRecorder) Close() error                                  { return nil }
