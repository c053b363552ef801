package alerts

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Policy decides whether a distance reading is dangerous.
type Policy struct {
	Threshold float64
}

// DefaultPolicy alerts on anything above DefaultThreshold.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold}
}

// Evaluate returns an AlertEvent when distanceCm is strictly above the
// threshold, nil otherwise. TriggeredAt is left for the caller to stamp.
func (p Policy) Evaluate(distanceCm float64) *AlertEvent {
	if !(distanceCm > p.Threshold) {
		return nil
	}
	return &AlertEvent{
		DistanceCm: distanceCm,
		Message:    buildMessage(distanceCm),
	}
}

// buildMessage rounds the exact binary value of the distance, so 100.005
// (stored as 100.00499...) renders as 100.00 while the exact tie 100.125
// rounds up to 100.13.
func buildMessage(distanceCm float64) string {
	return fmt.Sprintf("Alert 🚨 Distance too high: %s cm!", formatCm(distanceCm))
}

func formatCm(d float64) string {
	exact, err := decimal.NewFromString(strconv.FormatFloat(d, 'f', 60, 64))
	if err != nil {
		return strconv.FormatFloat(d, 'f', 2, 64)
	}
	return exact.StringFixed(2)
}
