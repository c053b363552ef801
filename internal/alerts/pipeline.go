package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// publishTimeout bounds the wait for the event bus confirm.
const publishTimeout = 5 * time.Second

// Publisher announces finished dispatches to other systems. Optional.
type Publisher interface {
	PublishReport(ctx context.Context, event AlertEvent, report Report) error
}

// Deps holds the collaborators of a Coordinator.
type Deps struct {
	Readings   *Readings
	Policy     Policy
	Dispatcher *Dispatcher
	Publisher  Publisher // nil disables publishing
	Observer   Observer  // nil disables metrics
	Logger     *slog.Logger
}

// Coordinator runs the per-reading pipeline: store, evaluate, dispatch.
type Coordinator struct {
	readings   *Readings
	policy     Policy
	dispatcher *Dispatcher
	publisher  Publisher
	observer   Observer
	logger     *slog.Logger
}

// NewCoordinator wires a Coordinator from deps.
func NewCoordinator(deps Deps) *Coordinator {
	c := &Coordinator{
		readings:   deps.Readings,
		policy:     deps.Policy,
		dispatcher: deps.Dispatcher,
		publisher:  deps.Publisher,
		observer:   deps.Observer,
		logger:     deps.Logger,
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// SubmitReading stores the reading and, when it crosses the threshold,
// alerts every registered device.
//
// Validation and storage errors on the reading itself abort before anything
// else happens. Once stored, the reading stays stored: batch failures are
// reported in Submission.Dispatch, and a failed registry snapshot is
// returned as an error alongside the populated Submission.Stored.
func (c *Coordinator) SubmitReading(ctx context.Context, distanceCm float64) (Submission, error) {
	// 1. Persist
	stored, err := c.readings.Append(ctx, distanceCm)
	if err != nil {
		return Submission{}, err
	}
	c.observer.ReadingStored()
	sub := Submission{Stored: stored, Persisted: true}

	// 2. Evaluate
	event := c.policy.Evaluate(stored.DistanceCm)
	if event == nil {
		return sub, nil
	}
	event.TriggeredAt = stored.CreatedAt
	c.observer.AlertTriggered()
	c.logger.Info("Distance above threshold",
		"reading_id", stored.ID, "distance", stored.DistanceCm, "threshold", c.policy.Threshold)

	// 3. Fan out. Detached from the caller so a dropped request does not
	// abort batches already in flight.
	dispatchCtx := context.WithoutCancel(ctx)
	report, err := c.dispatcher.Dispatch(dispatchCtx, *event)
	if err != nil {
		return sub, fmt.Errorf("dispatch alert for reading %d: %w", stored.ID, err)
	}
	sub.Dispatch = &report

	// 4. Announce
	if c.publisher != nil {
		pubCtx, cancel := context.WithTimeout(dispatchCtx, publishTimeout)
		defer cancel()
		if err := c.publisher.PublishReport(pubCtx, *event, report); err != nil {
			c.logger.Warn("Failed to publish dispatch report", "dispatch_id", report.ID, "error", err)
		}
	}
	return sub, nil
}
