package alerts_test

import (
	"context"
	"testing"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
	"github.com/ultrasense/ultrasense-server/internal/alerts/alertstest"
)

func TestLatestReturnsLastAppended(t *testing.T) {
	readings := alerts.NewReadings(alertstest.NewStore())
	ctx := context.Background()

	for _, d := range []float64{10, 20, 30} {
		if _, err := readings.Append(ctx, d); err != nil {
			t.Fatalf("append %v: %v", d, err)
		}
	}

	latest, err := readings.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.DistanceCm != 30 {
		t.Fatalf("expected latest distance 30, got %+v", latest)
	}
}

func TestLatestOnEmptyStoreIsNil(t *testing.T) {
	latest, err := alerts.NewReadings(alertstest.NewStore()).Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected nil, got %+v", latest)
	}
}

func TestAppendRunsHooks(t *testing.T) {
	readings := alerts.NewReadings(alertstest.NewStore())
	var seen []float64
	readings.OnAppend(func(_ context.Context, r alerts.Reading) {
		seen = append(seen, r.DistanceCm)
	})

	if _, err := readings.Append(context.Background(), 42); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(seen) != 1 || seen[0] != 42 {
		t.Fatalf("expected hook to see 42, got %v", seen)
	}
}

func TestAppendFailureSkipsHooks(t *testing.T) {
	store := alertstest.NewStore()
	store.FailReadings = true
	readings := alerts.NewReadings(store)
	called := false
	readings.OnAppend(func(context.Context, alerts.Reading) { called = true })

	if _, err := readings.Append(context.Background(), 1); err == nil {
		t.Fatalf("expected error")
	}
	if called {
		t.Fatalf("hook must not run for a failed append")
	}
}
