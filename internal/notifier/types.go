package notifier

import (
	"context"
	"time"
)

// Sink delivers one text message to one destination.
type Sink interface {
	Send(ctx context.Context, destination, text string) error
}

// Config controls the dispatcher.
type Config struct {
	Workers     int           // concurrent sends per dispatch; default 4
	RatePerSec  int           // shared push budget; default 10
	SendTimeout time.Duration // per send; default 10s
}

type Status string

const (
	Delivered Status = "delivered"
	Failed    Status = "failed"
	Skipped   Status = "skipped"
)

// Outcome is the result of one destination's attempt, or a single skip
// record when no attempt was made.
type Outcome struct {
	Destination string `json:"destination,omitempty"`
	Status      Status `json:"outcome"`
	Detail      string `json:"detail,omitempty"`
}

// Skip returns the single outcome recorded when dispatch does not happen.
func Skip(reason string) Outcome {
	return Outcome{Status: Skipped, Detail: reason}
}

// Counts tallies outcomes by status.
func Counts(outs []Outcome) (delivered, failed, skipped int) {
	for _, o := range outs {
		switch o.Status {
		case Delivered:
			delivered++
		case Failed:
			failed++
		case Skipped:
			skipped++
		}
	}
	return delivered, failed, skipped
}
