package dispatch

import (
	"time"
)

// Status is the outcome for one recipient.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
	// StatusEmpty means every entry was dropped or skipped; nothing was sent.
	StatusEmpty Status = "empty"
)

// Result is what happened to one recipient's digest.
type Result struct {
	Recipient string
	Status    Status
	Entries   int
	Dropped   int
	Skipped   int
	Attempts  int
	Err       error
}

// Report summarizes one Run.
type Report struct {
	// Due is false when the schedule said not now; nothing else happened.
	Due    bool
	Forced bool
	// Busy is true when another run held the lock; nothing else happened.
	Busy bool

	Subject string
	// Watermark is the snapshot sequence cleared at the end of the run.
	Watermark uint64
	Events    int
	Results   []Result
	Cleared   bool

	Started time.Time
	Took    time.Duration
}

func (r Report) count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

func (r Report) Sent() int   { return r.count(StatusSent) }
func (r Report) Failed() int { return r.count(StatusFailed) }
func (r Report) Empty() int  { return r.count(StatusEmpty) }
