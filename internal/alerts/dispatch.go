package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Snapshotter provides the point-in-time token set a dispatch runs against.
type Snapshotter interface {
	SnapshotAll(ctx context.Context) ([]DeviceToken, error)
}

// Observer receives pipeline measurements. See internal/metrics.
type Observer interface {
	ReadingStored()
	AlertTriggered()
	BatchFinished(status Status, size, ticketErrors int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ReadingStored() {}
func (nopObserver) AlertTriggered() {}
func (nopObserver) BatchFinished(Status, int, int, time.Duration) {}

// Dispatcher fans one AlertEvent out to every registered device.
type Dispatcher struct {
	registry Snapshotter
	sender   Sender
	workers  int
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher sending at most workers batches at once.
func NewDispatcher(registry Snapshotter, sender Sender, workers int, observer Observer, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		sender:   sender,
		workers:  workers,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch snapshots the registry, groups tokens by tenant, drops invalid
// tokens, chunks each tenant and sends every batch. A failing batch never
// affects its siblings; the only returned error is a failed snapshot.
func (d *Dispatcher) Dispatch(ctx context.Context, event AlertEvent) (Report, error) {
	report := Report{ID: uuid.NewString(), StartedAt: d.now().UTC()}

	snapshot, err := d.registry.SnapshotAll(ctx)
	if err != nil {
		return report, err
	}
	if len(snapshot) == 0 {
		d.logger.Info("No registered devices to alert", "dispatch_id", report.ID)
		report.Outcomes = []Outcome{}
		return report, nil
	}

	batches := buildBatches(groupByTenant(snapshot), d.sender.ValidToken, d.sender.MaxChunkSize())
	report.Outcomes = make([]Outcome, len(batches))

	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			// Each goroutine owns exactly one slot, so report order is
			// generation order whatever the completion order.
			report.Outcomes[i] = d.send(ctx, batch, event)
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = d.now().Sub(report.StartedAt)
	d.logger.Info("Alert dispatched",
		"dispatch_id", report.ID,
		"devices", len(snapshot),
		"summary", report.Summary())
	return report, nil
}

// send performs one provider call and converts any error or panic into a
// failed Outcome.
func (d *Dispatcher) send(ctx context.Context, batch Batch, event AlertEvent) (out Outcome) {
	out = Outcome{TenantID: batch.TenantID, BatchIndex: batch.Index, Size: len(batch.Tokens)}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Error = (&BatchError{TenantID: batch.TenantID, BatchIndex: batch.Index, Err: fmt.Errorf("panic: %v", r)}).Error()
		}
		d.observer.BatchFinished(out.Status, out.Size, out.TicketErrors, time.Since(start))
		if out.Status == StatusFailed {
			d.logger.Warn("Push batch failed",
				"experience_id", batch.TenantID, "batch", batch.Index, "size", out.Size, "error", out.Error)
		}
	}()

	result, err := d.sender.SendBatch(ctx, buildMessages(batch, event))
	if err != nil {
		out.Status = StatusFailed
		out.Error = (&BatchError{TenantID: batch.TenantID, BatchIndex: batch.Index, Err: err}).Error()
		return out
	}

	out.Status = StatusSent
	out.TicketErrors = len(result.TicketErrors)
	for _, te := range result.TicketErrors {
		d.logger.Warn("Push ticket rejected",
			"experience_id", batch.TenantID, "batch", batch.Index, "token", te.Token, "code", te.Code, "message", te.Message)
	}
	return out
}

// --------------------------------------------------------------------------
// Grouping and chunking
// --------------------------------------------------------------------------

type tenantGroup struct {
	tenantID string
	tokens   []string
}

// groupByTenant partitions tokens by exact tenant id, keeping first-seen
// tenant order and snapshot order within a tenant. A token seen twice is
// kept only at its first position.
func groupByTenant(snapshot []DeviceToken) []tenantGroup {
	index := make(map[string]int)
	seen := make(map[string]struct{}, len(snapshot))
	var groups []tenantGroup

	for _, dt := range snapshot {
		if _, dup := seen[dt.Token]; dup {
			continue
		}
		seen[dt.Token] = struct{}{}

		i, ok := index[dt.TenantID]
		if !ok {
			i = len(groups)
			index[dt.TenantID] = i
			groups = append(groups, tenantGroup{tenantID: dt.TenantID})
		}
		groups[i].tokens = append(groups[i].tokens, dt.Token)
	}
	return groups
}

// buildBatches filters each group with valid and splits it into
// consecutive chunks of at most size tokens. Groups left empty after
// filtering produce no batch.
func buildBatches(groups []tenantGroup, valid func(string) bool, size int) []Batch {
	if size < 1 {
		size = 1
	}
	var batches []Batch
	for _, g := range groups {
		kept := make([]string, 0, len(g.tokens))
		for _, t := range g.tokens {
			if valid(t) {
				kept = append(kept, t)
			}
		}
		for start, idx := 0, 0; start < len(kept); start, idx = start+size, idx+1 {
			end := min(start+size, len(kept))
			batches = append(batches, Batch{
				TenantID: g.tenantID,
				Index:    idx,
				Tokens:   kept[start:end:end],
			})
		}
	}
	return batches
}

func buildMessages(batch Batch, event AlertEvent) []Message {
	messages := make([]Message, 0, len(batch.Tokens))
	for _, token := range batch.Tokens {
		messages = append(messages, Message{
			To:           token,
			Title:        alertTitle,
			Body:         event.Message,
			Sound:        alertSound,
			Data:         map[string]any{"distance": event.DistanceCm},
			ExperienceID: batch.TenantID,
		})
	}
	return messages
}
