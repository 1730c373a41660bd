package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is one ingestion pass over the procurement feed.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string // "running", "succeeded", "failed"
	From       time.Time
	To         time.Time
	Releases   int
	Notices    int
	Error      string
}

// Notice is the cached working record of one procurement within one notice
// family. RecordJSON holds the full column map as written to the workbook.
type Notice struct {
	OCID        string
	NoticeID    string
	NoticeType  string
	Family      string
	Title       string
	PublishedAt string
	Deadline    string // tender submission deadline, empty when not applicable
	RecordJSON  string
	UpdatedAt   time.Time
}
