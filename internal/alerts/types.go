// Package alerts turns distance readings into push alerts for every
// registered device.
//
// Pipeline: store reading → evaluate threshold → snapshot token registry →
// group by experience → chunk → send batches concurrently → report.
// Storage and push delivery are injected collaborators (see store.go and
// expo.go); nothing in this package holds global state.
package alerts

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DefaultThreshold = 100.0 // cm
	DefaultWorkers   = 4
	alertTitle       = "UltraSense"
	alertSound       = "default"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// DeviceToken associates a push token with the experience (tenant) that owns
// the device. Unique on Token; re-registration overwrites TenantID.
type DeviceToken struct {
	Token        string    `json:"token"`
	TenantID     string    `json:"experienceId"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Reading is a single stored distance measurement.
type Reading struct {
	ID         int64     `json:"id"`
	DistanceCm float64   `json:"distance"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AlertEvent is produced by Policy.Evaluate when a reading crosses the
// threshold. It is never persisted.
type AlertEvent struct {
	DistanceCm  float64   `json:"distance"`
	TriggeredAt time.Time `json:"triggeredAt"`
	Message     string    `json:"message"`
}

// Batch is a provider-sized group of tokens belonging to one tenant.
type Batch struct {
	TenantID string
	Index    int // chunk position within the tenant
	Tokens   []string
}

// Status is the result of a single batch send.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Outcome records what happened to one batch.
type Outcome struct {
	TenantID     string `json:"experienceId"`
	BatchIndex   int    `json:"batchIndex"`
	Size         int    `json:"size"`
	Status       Status `json:"status"`
	TicketErrors int    `json:"ticketErrors,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Report is the ordered set of outcomes of one dispatch: tenant order, then
// chunk order within the tenant.
type Report struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"-"`
	Outcomes  []Outcome     `json:"outcomes"`
}

// Sent returns the number of batches accepted by the provider.
func (r *Report) Sent() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusSent {
			n++
		}
	}
	return n
}

// Failed returns the number of batches that could not be delivered.
func (r *Report) Failed() int {
	return len(r.Outcomes) - r.Sent()
}

// Summary returns a human-readable summary of the dispatch.
func (r *Report) Summary() string {
	return fmt.Sprintf("batches=%d sent=%d failed=%d duration=%s",
		len(r.Outcomes), r.Sent(), r.Failed(), r.Duration.Round(time.Millisecond))
}

// Submission is what the coordinator returns for one incoming reading.
// Dispatch is nil when the reading did not trigger an alert. Persisted is
// set once the reading has been appended, even if a later step failed.
type Submission struct {
	Stored    Reading `json:"reading"`
	Dispatch  *Report `json:"dispatch"`
	Persisted bool    `json:"-"`
}
